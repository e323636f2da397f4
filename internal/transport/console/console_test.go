package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	kit "throttlebot/internal/transport"
	logx "throttlebot/pkg/logx"
)

func TestConsoleRoundTrip(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	a := New(strings.NewReader("!time\nhello\n"), &out, "tester", logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan kit.Update, 4)
	if err := a.Start(ctx, updates); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var got []string
	for len(got) < 2 {
		select {
		case up := <-updates:
			if up.Message.Sender != "tester" || up.Message.Target != Target {
				t.Fatalf("unexpected message %+v", up.Message)
			}
			got = append(got, up.Message.Text)
		case <-time.After(time.Second):
			t.Fatalf("received %q, want 2 lines", got)
		}
	}
	if got[0] != "!time" || got[1] != "hello" {
		t.Fatalf("lines = %q", got)
	}

	_ = a.SendText(ctx, Target, "2014-03-09 18:04:05")
	_ = a.SendAction(ctx, Target, "v1.0.0")
	want := "[console] 2014-03-09 18:04:05\n[console] * v1.0.0\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_ = a.Stop(ctx)
}
