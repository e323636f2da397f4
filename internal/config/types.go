package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config is the on-disk configuration (JSON or YAML).
//
// Example (YAML):
//
//	bot:      { name: gweebot, prefix: "!" }
//	telegram: { token: "", poll_timeout: 10s }
//	commands: { "!time": { cooldown: 5s }, "!version": { cooldown: 10000 } }
//	logging:  { level: info, console: true }
type Config struct {
	Bot      BotConfig                `json:"bot"`
	Telegram TelegramConfig           `json:"telegram"`
	Commands map[string]CommandConfig `json:"commands,omitempty"`
	Dispatch DispatchConfig           `json:"dispatch"`
	Logging  LoggingConfig            `json:"logging"`
	Stats    StatsConfig              `json:"stats"`
	Storage  *StorageConfig           `json:"storage,omitempty"`
}

type BotConfig struct {
	Name string `json:"name"`
	// Prefix marks a chat line as a command. Default "!".
	Prefix string `json:"prefix,omitempty"`
	// Version overrides the version announced by the version command.
	Version string `json:"version,omitempty"`
	// Timezone for the time command (IANA name). Default: local time.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout    string `json:"poll_timeout,omitempty"`
	SendRatePerSec int    `json:"send_rate_per_sec,omitempty"`
	// LogChatID receives mirrored log lines when logging.chat is enabled.
	LogChatID   int64 `json:"log_chat_id,omitempty"`
	LogThreadID int   `json:"log_thread_id,omitempty"`
}

// CommandConfig overrides per-command settings. Keys of Config.Commands are
// command tokens including the prefix ("!time").
type CommandConfig struct {
	Cooldown Millis `json:"cooldown"`
}

// DispatchConfig sizes the dispatch worker pool.
//
// Defaults: workers max(2, NumCPU), queue_size 256, handler_timeout "10s".
type DispatchConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StatsConfig controls the periodic dispatch stats log line.
// Schedule is a cron expression or descriptor ("@every 1h"); empty disables it.
type StatsConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

// StorageConfig controls the optional command audit log.
//
//	"storage": { "driver": "sqlite", "path": "./bot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// CommandPrefix returns the configured prefix or "!".
func (c *Config) CommandPrefix() string {
	if c == nil {
		return "!"
	}
	if p := strings.TrimSpace(c.Bot.Prefix); p != "" {
		return p
	}
	return "!"
}

// Cooldowns returns the configured per-command cooldowns keyed by lowercase token.
func (c *Config) Cooldowns() map[string]int64 {
	out := map[string]int64{}
	if c == nil {
		return out
	}
	for k, v := range c.Commands {
		out[strings.ToLower(strings.TrimSpace(k))] = int64(v.Cooldown)
	}
	return out
}

// Millis is a millisecond count that decodes from either a JSON number
// (milliseconds) or a Go duration string ("5s", "1m30s").
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			return fmt.Errorf("cooldown: %q is not an integer number of milliseconds", n)
		}
		*m = Millis(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("cooldown: want milliseconds or a duration string, got %s", b)
	}
	d, err := durationField("cooldown", s, 0)
	if err != nil {
		return err
	}
	*m = Millis(d.Milliseconds())
	return nil
}

func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

// Defaults for the duration fields left empty in the file.
const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultHandlerTimeout = 10 * time.Second
	DefaultBusyTimeout    = 5 * time.Second
)

// PollTimeoutOrDefault parses telegram.poll_timeout.
func (t TelegramConfig) PollTimeoutOrDefault() (time.Duration, error) {
	return durationField("telegram.poll_timeout", t.PollTimeout, DefaultPollTimeout)
}

// HandlerTimeoutOrDefault parses dispatch.handler_timeout.
func (d DispatchConfig) HandlerTimeoutOrDefault() (time.Duration, error) {
	return durationField("dispatch.handler_timeout", d.HandlerTimeout, DefaultHandlerTimeout)
}

// BusyTimeoutOrDefault parses storage.busy_timeout.
func (s StorageConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return durationField("storage.busy_timeout", s.BusyTimeout, DefaultBusyTimeout)
}

// durationField parses a Go duration string found at config key key.
// Empty or zero yields def; negative values are rejected.
func durationField(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must be >= 0, got %s", key, d)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
