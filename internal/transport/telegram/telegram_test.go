package telegram

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	logx "throttlebot/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("12:00", 10)
	if len(got) != 1 || got[0] != "12:00" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextHardCut(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("é", 25)
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for _, c := range got {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:       7,
		Text:     "!time",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: -100},
		Sender:   &tele.User{ID: 42, Username: "alice"},
	}
	got := toMessage(m)
	if got.Sender != "42" || got.SenderName != "alice" || got.Target.ChatID != -100 || got.Target.ThreadID != 3 || got.Text != "!time" {
		t.Fatalf("toMessage = %+v", got)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
