// Package clock supplies the current instant as epoch milliseconds.
//
// Throttling compares integer millisecond instants, so the abstraction is
// deliberately narrower than time.Time: tests drive it with Manual.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current instant in epoch milliseconds.
type Clock interface {
	NowMillis() int64
}

// Func adapts a plain function to Clock.
type Func func() int64

func (f Func) NowMillis() int64 { return f() }

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

// Manual is a caller-controlled Clock. Zero value reads 0.
// Safe for concurrent use.
type Manual struct {
	ms atomic.Int64
}

// NewManual returns a Manual clock set to ms.
func NewManual(ms int64) *Manual {
	m := &Manual{}
	m.ms.Store(ms)
	return m
}

func (m *Manual) NowMillis() int64 { return m.ms.Load() }

// Set moves the clock to ms (backwards is allowed).
func (m *Manual) Set(ms int64) { m.ms.Store(ms) }

// Advance moves the clock forward by d, truncated to whole milliseconds.
func (m *Manual) Advance(d time.Duration) { m.ms.Add(d.Milliseconds()) }
