package dispatch

import (
	"context"
	"testing"
	"time"

	kit "throttlebot/internal/transport"
)

func TestDispatchLoopRunsCommands(t *testing.T) {
	t.Parallel()
	out := &fakeResponder{}
	d, _ := newTestDispatcher(t, WithResponder(out), WithWorkers(2), WithQueueSize(8))
	_ = d.Register("!echo", func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "echo")
	}, 60_000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- d.DispatchLoop(ctx, updates) }()

	m := msg("!echo")
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &m}

	deadline := time.After(2 * time.Second)
	for len(out.sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("command was not executed by the loop")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(updates)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DispatchLoop did not stop after updates closed")
	}
	if got := d.Stats().Executed; got != 1 {
		t.Fatalf("Executed = %d, want 1", got)
	}
}

func TestDispatchLoopStopsOnCancel(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t, WithWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.DispatchLoop(ctx, make(chan kit.Update)) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DispatchLoop did not stop on cancel")
	}
}
