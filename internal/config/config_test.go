package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
bot:
  name: gweebot
  prefix: "!"
telegram:
  token: "123:abc"
  poll_timeout: 10s
commands:
  "!time": { cooldown: 5s }
  "!Version": { cooldown: 10000 }
dispatch:
  workers: 4
logging:
  level: debug
  console: true
  file: { enabled: false, path: "" }
  chat: { enabled: false }
stats:
  schedule: "@every 1h"
storage:
  driver: sqlite
  path: ./bot.db
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}
	if cfg.Bot.Name != "gweebot" || cfg.CommandPrefix() != "!" {
		t.Fatalf("bot section: %+v", cfg.Bot)
	}
	cd := cfg.Cooldowns()
	if cd["!time"] != 5000 {
		t.Fatalf("!time cooldown = %d, want 5000", cd["!time"])
	}
	if cd["!version"] != 10000 {
		t.Fatalf("!version cooldown = %d, want 10000 (keys are lowercased)", cd["!version"])
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"bot":{"name":"b"},"commands":{"!ping":{"cooldown":"1m"}}}`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Cooldowns()["!ping"]; got != 60000 {
		t.Fatalf("cooldown = %d, want 60000", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "c.json", `{"bot":{"name":"b","nope":1}}`},
		{"trailing data", "c.json", `{"bot":{}} {"bot":{}}`},
		{"bad cooldown string", "c.json", `{"commands":{"!a":{"cooldown":"soon"}}}`},
		{"fractional cooldown", "c.json", `{"commands":{"!a":{"cooldown":1.5}}}`},
		{"bad yaml", "c.yaml", "bot: [unclosed"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.file, []byte(tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty ok", Config{}, ""},
		{"prefix whitespace", Config{Bot: BotConfig{Prefix: "! "}}, ""},
		{"prefix inner whitespace", Config{Bot: BotConfig{Prefix: "a b"}}, "bot.prefix"},
		{"token without prefix", Config{Commands: map[string]CommandConfig{"time": {}}}, "must start with prefix"},
		{"prefix only token", Config{Commands: map[string]CommandConfig{"!": {}}}, "must start with prefix"},
		{"negative cooldown", Config{Commands: map[string]CommandConfig{"!a": {Cooldown: -1}}}, "cooldown"},
		{"bad level", Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
		{"file without path", Config{Logging: LoggingConfig{File: LoggingFile{Enabled: true}}}, "logging.file.path"},
		{"bad schedule", Config{Stats: StatsConfig{Schedule: "whenever"}}, "stats.schedule"},
		{"bad timezone", Config{Bot: BotConfig{Timezone: "Mars/Olympus"}}, "bot.timezone"},
		{"bad driver", Config{Storage: &StorageConfig{Driver: "mongo"}}, "storage.driver"},
		{"sqlite without path", Config{Storage: &StorageConfig{Driver: "sqlite"}}, "storage.path"},
		{"bad timeout", Config{Dispatch: DispatchConfig{HandlerTimeout: "-1s"}}, "dispatch.handler_timeout"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	a, err := Decode("a.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, _ := Decode("b.yaml", []byte(sampleYAML))
	if ch := Summarize(a, b); !ch.Empty() {
		t.Fatalf("identical configs differ: %+v", ch)
	}
	b.Logging.Level = "warn"
	b.Commands["!time"] = CommandConfig{Cooldown: 1}
	ch := Summarize(a, b)
	if len(ch.Live) != 1 || ch.Live[0] != "logging" {
		t.Fatalf("live = %v", ch.Live)
	}
	if len(ch.Restart) != 1 || ch.Restart[0] != "commands" {
		t.Fatalf("restart = %v", ch.Restart)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(context.Background())
	if err != nil || ok {
		t.Fatalf("unchanged reload: ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(p, []byte(strings.Replace(sampleYAML, "level: debug", "level: warn", 1)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = m.Reload(context.Background())
	if err != nil || !ok {
		t.Fatalf("changed reload: ok=%v err=%v", ok, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatalf("no config published")
	}
}

func TestReloadRejectedByValidator(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := m.Get()
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return context.Canceled })
	_ = os.WriteFile(p, []byte(strings.Replace(sampleYAML, "gweebot", "other", 1)), 0o600)
	if ok, err := m.Reload(context.Background()); ok || err == nil {
		t.Fatalf("expected rejection, ok=%v err=%v", ok, err)
	}
	if m.Get() != before {
		t.Fatalf("rejected config was committed")
	}
}

func TestWatchPicksUpWrite(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	body := strings.Replace(sampleYAML, "level: debug", "level: error", 1)
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "error" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// rewrite until the watcher is registered and sees it
			_ = os.WriteFile(p, []byte(body), 0o600)
		case <-deadline:
			t.Fatalf("watcher never published")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	ch := m.Subscribe(0)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	m.Unsubscribe(ch)
	m.publish(&Config{})
}

func TestDurationAccessors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		get     func() (time.Duration, error)
		want    time.Duration
		wantErr bool
	}{
		{"poll default", TelegramConfig{}.PollTimeoutOrDefault, DefaultPollTimeout, false},
		{"poll set", TelegramConfig{PollTimeout: " 30s "}.PollTimeoutOrDefault, 30 * time.Second, false},
		{"handler zero means default", DispatchConfig{HandlerTimeout: "0s"}.HandlerTimeoutOrDefault, DefaultHandlerTimeout, false},
		{"handler negative", DispatchConfig{HandlerTimeout: "-2s"}.HandlerTimeoutOrDefault, 0, true},
		{"busy garbage", StorageConfig{BusyTimeout: "soon"}.BusyTimeoutOrDefault, 0, true},
		{"busy set", StorageConfig{BusyTimeout: "250ms"}.BusyTimeoutOrDefault, 250 * time.Millisecond, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.get()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNegativeCooldownStringRejected(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"commands":{"!a":{"cooldown":"-5s"}}}`)); err == nil {
		t.Fatalf("expected negative duration cooldown to be rejected")
	}
}
