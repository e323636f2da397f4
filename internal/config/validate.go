package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/robfig/cron/v3"

	logx "throttlebot/pkg/logx"
)

// Validate checks cross-field rules the JSON decoder cannot express.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	prefix := cfg.CommandPrefix()
	if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
		add("bot.prefix: must not contain whitespace")
	}
	for tok, cc := range cfg.Commands {
		t := strings.TrimSpace(tok)
		switch {
		case t == "":
			add("commands: empty command token")
		case !strings.HasPrefix(strings.ToLower(t), strings.ToLower(prefix)) || len(t) == len(prefix):
			add("commands.%s: token must start with prefix %q", tok, prefix)
		case strings.IndexFunc(t, unicode.IsSpace) >= 0:
			add("commands.%s: token must not contain whitespace", tok)
		}
		if cc.Cooldown < 0 {
			add("commands.%s.cooldown: must be >= 0", tok)
		}
	}

	if tz := strings.TrimSpace(cfg.Bot.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("bot.timezone: invalid %q: %v", tz, err)
		}
	}
	if _, err := cfg.Telegram.PollTimeoutOrDefault(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.SendRatePerSec < 0 {
		add("telegram.send_rate_per_sec: must be >= 0")
	}
	if cfg.Dispatch.Workers < 0 {
		add("dispatch.workers: must be >= 0")
	}
	if cfg.Dispatch.QueueSize < 0 {
		add("dispatch.queue_size: must be >= 0")
	}
	if _, err := cfg.Dispatch.HandlerTimeoutOrDefault(); err != nil {
		errs = append(errs, err)
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add("logging.level: unknown level %q", lv)
	}
	if lv := strings.TrimSpace(cfg.Logging.Chat.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		add("logging.chat.min_level: unknown level %q", lv)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path: required when file logging is enabled")
	}

	if s := strings.TrimSpace(cfg.Stats.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			add("stats.schedule: %v", err)
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "sqlite", "sqlite3", "file":
			if strings.TrimSpace(st.Path) == "" {
				add("storage.path: required for driver %q", st.Driver)
			}
		default:
			add("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := st.BusyTimeoutOrDefault(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
