package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "throttlebot/internal/transport"
)

// newJSONLogger is a standalone JSON logger writing to w.
func newJSONLogger(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

type recordingSender struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSender) SendText(_ context.Context, to kit.Target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, to.String()+": "+text)
	return nil
}

func (r *recordingSender) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger must report IsZero")
	}
	l.Info("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop logger must not be zero")
	}
}

func TestWithFieldsAreWritten(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "debug").With(String("comp", "dispatch"))
	l.Info("command executed", String("cmd", "!time"), Int64("took_ms", 3), Bool("audited", true))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["comp"] != "dispatch" || m["cmd"] != "!time" || m["message"] != "command executed" || m["audited"] != true {
		t.Fatalf("unexpected log line: %v", m)
	}
	if _, ok := m[zerolog.CallerFieldName]; !ok {
		t.Fatalf("expected caller field in %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if l.Enabled(LevelInfo) || !l.Enabled(LevelError) {
		t.Fatal("Enabled does not match configured level")
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"x","message":"handler failed","cmd":"!time","caller":"a.go:1"}`
	got := formatChatLine([]byte(line))
	want := "[WARN] handler failed\n- caller=a.go:1\n- cmd=!time"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-JSON line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("warning", zerolog.InfoLevel) != zerolog.WarnLevel {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", zerolog.ErrorLevel) != zerolog.ErrorLevel {
		t.Fatal("unknown level should return default")
	}
	if !ValidLevel("") || !ValidLevel("Debug") || ValidLevel("loud") {
		t.Fatal("ValidLevel mismatch")
	}
}

func TestChatSinkFollowsSetSender(t *testing.T) {
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, Target: kit.Target{Name: "ops"}, MinLevel: "warn", RatePerSec: 100},
	}, nil)
	defer svc.Close()

	log.Warn("before sender")
	rec := &recordingSender{}
	svc.SetSender(rec)
	log.Info("below min level")
	log.Warn("after sender", String("cmd", "!time"))

	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := rec.snapshot()
	if len(got) != 1 || !strings.HasPrefix(got[0], "ops: [WARN] after sender") {
		t.Fatalf("chat lines = %q", got)
	}

	svc.SetSender(nil)
	log.Warn("detached")
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.snapshot()); n != 1 {
		t.Fatalf("sender got %d lines after detach, want 1", n)
	}
}
