// Package throttle implements per-command cooldowns.
//
// A command is throttled iff it has a recorded usage AND
// lastUsed + cooldown > now. Commands without a configured cooldown are never
// throttled. IsThrottled and RecordUsage are separate calls: two concurrent
// invocations of the same command may both pass the check before either one
// records usage. That window is accepted; callers must not rely on
// exactly-once-per-cooldown semantics.
package throttle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"throttlebot/internal/clock"
)

var (
	// ErrInvalidArgument is returned when a command identifier is empty.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidConfiguration is returned for negative cooldowns.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Throttler tracks per-command cooldowns. A command is throttled iff it has
// a recorded use and last use + cooldown is still after now. Commands with no
// configured cooldown are never throttled. Safe for concurrent use; checking
// and recording are separate steps, so two racing callers may both pass.
type Throttler struct {
	clock clock.Clock

	cfgMu    sync.RWMutex
	cooldown map[string]int64 // command -> cooldown ms

	histMu  sync.RWMutex
	history map[string]int64 // command -> last successful use (epoch ms)
}

// New returns an empty Throttler. A nil clock falls back to the system clock.
func New(c clock.Clock) *Throttler {
	if c == nil {
		c = clock.System()
	}
	return &Throttler{
		clock:    c,
		cooldown: map[string]int64{},
		history:  map[string]int64{},
	}
}

// Normalize returns the canonical form of a command identifier.
func Normalize(command string) string {
	return strings.ToLower(strings.TrimSpace(command))
}

// Configure registers or overwrites the cooldown for command.
// Intended for setup; it is still safe to call concurrently with lookups.
func (t *Throttler) Configure(command string, cooldownMillis int64) error {
	key := Normalize(command)
	if key == "" {
		return fmt.Errorf("configure: %w: empty command", ErrInvalidArgument)
	}
	if cooldownMillis < 0 {
		return fmt.Errorf("configure %s: %w: cooldown must be >= 0, got %d", key, ErrInvalidConfiguration, cooldownMillis)
	}
	t.cfgMu.Lock()
	t.cooldown[key] = cooldownMillis
	t.cfgMu.Unlock()
	return nil
}

// Cooldown returns the configured cooldown for command.
func (t *Throttler) Cooldown(command string) (int64, bool) {
	t.cfgMu.RLock()
	ms, ok := t.cooldown[Normalize(command)]
	t.cfgMu.RUnlock()
	return ms, ok
}

// IsThrottled reports whether command is inside its cooldown window.
// It never mutates state.
func (t *Throttler) IsThrottled(command string) (bool, error) {
	until, err := t.throttledUntil(command)
	if err != nil {
		return false, err
	}
	return until > t.clock.NowMillis(), nil
}

// Remaining returns how long command stays throttled; 0 when it is not.
func (t *Throttler) Remaining(command string) (time.Duration, error) {
	until, err := t.throttledUntil(command)
	if err != nil {
		return 0, err
	}
	left := until - t.clock.NowMillis()
	if left <= 0 {
		return 0, nil
	}
	return time.Duration(left) * time.Millisecond, nil
}

// RecordUsage stores the current instant as command's last use.
func (t *Throttler) RecordUsage(command string) error {
	key := Normalize(command)
	if key == "" {
		return fmt.Errorf("record usage: %w: empty command", ErrInvalidArgument)
	}
	now := t.clock.NowMillis()
	t.histMu.Lock()
	t.history[key] = now
	t.histMu.Unlock()
	return nil
}

// throttledUntil returns the instant (epoch ms) at which command stops being
// throttled, or 0 when it has no cooldown or no history.
func (t *Throttler) throttledUntil(command string) (int64, error) {
	key := Normalize(command)
	if key == "" {
		return 0, fmt.Errorf("is throttled: %w: empty command", ErrInvalidArgument)
	}
	cd, ok := t.Cooldown(key)
	if !ok {
		return 0, nil
	}
	t.histMu.RLock()
	last, used := t.history[key]
	t.histMu.RUnlock()
	if !used {
		return 0, nil
	}
	return last + cd, nil
}
