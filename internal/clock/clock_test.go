package clock

import (
	"testing"
	"time"
)

func TestSystemClockTracksWallTime(t *testing.T) {
	t.Parallel()
	before := time.Now().UnixMilli()
	got := System().NowMillis()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Fatalf("NowMillis = %d, want within [%d, %d]", got, before, after)
	}
}

func TestManualClock(t *testing.T) {
	t.Parallel()
	m := NewManual(1000)
	if got := m.NowMillis(); got != 1000 {
		t.Fatalf("NowMillis = %d, want 1000", got)
	}
	m.Advance(1500 * time.Millisecond)
	if got := m.NowMillis(); got != 2500 {
		t.Fatalf("after Advance NowMillis = %d, want 2500", got)
	}
	m.Set(10)
	if got := m.NowMillis(); got != 10 {
		t.Fatalf("after Set NowMillis = %d, want 10", got)
	}

	var zero Manual
	if got := zero.NowMillis(); got != 0 {
		t.Fatalf("zero Manual NowMillis = %d, want 0", got)
	}
}

func TestFuncClock(t *testing.T) {
	t.Parallel()
	var c Clock = Func(func() int64 { return 42 })
	if got := c.NowMillis(); got != 42 {
		t.Fatalf("NowMillis = %d, want 42", got)
	}
}
