package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"throttlebot/internal/config"
	"throttlebot/internal/dispatch"
	"throttlebot/internal/storage"
	kit "throttlebot/internal/transport"
	"throttlebot/internal/transport/console"
	logx "throttlebot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := sc.BusyTimeoutOrDefault()
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

// mapLogConfig builds the logx config. In console mode log lines mirrored to
// chat go to the console channel instead of a Telegram chat.
func mapLogConfig(cfg *config.Config, consoleMode bool) logx.Config {
	target := kit.Target{ChatID: cfg.Telegram.LogChatID, ThreadID: cfg.Telegram.LogThreadID}
	if consoleMode {
		target = console.Target
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			Target:     target,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Bot.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// ErrUnknownCommand reports a commands: entry that names no registered handler.
var ErrUnknownCommand = errors.New("unknown command in config")

// checkCommandKeys rejects cooldown entries for tokens no handler is
// registered under, so a typo cannot be silently ignored.
func checkCommandKeys(d *dispatch.Dispatcher, cfg *config.Config) error {
	known := map[string]bool{}
	for _, c := range d.Commands() {
		known[c.Token] = true
	}
	var unknown []string
	for tok := range cfg.Cooldowns() {
		if !known[tok] {
			unknown = append(unknown, tok)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("commands: %w: %s", ErrUnknownCommand, strings.Join(unknown, ", "))
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}
