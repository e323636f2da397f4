// Package dispatch routes inbound chat lines to command handlers under
// per-command cooldowns.
//
// OnMessage is synchronous and safe for concurrent use. Usage is recorded
// only after a handler returns without error, so a failed run never puts a
// command into cooldown.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"throttlebot/internal/eventbus"
	"throttlebot/internal/throttle"
	kit "throttlebot/internal/transport"
	logx "throttlebot/pkg/logx"
)

// DefaultPrefix marks a chat line as a command.
const DefaultPrefix = "!"

var (
	ErrInvalidArgument      = throttle.ErrInvalidArgument
	ErrInvalidConfiguration = throttle.ErrInvalidConfiguration
	// ErrHandlerFailure wraps any error (or panic) raised by a handler.
	ErrHandlerFailure = errors.New("handler failure")
)

// Outcome is what OnMessage did with a message.
type Outcome int

const (
	OutcomeIgnored   Outcome = iota // not a command
	OutcomeUnknown                  // prefixed, but no handler
	OutcomeThrottled                // suppressed by cooldown
	OutcomeExecuted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeExecuted:
		return "executed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Command is a registered handler plus the metadata !help shows.
type Command struct {
	Token       string // includes the prefix, e.g. "!time"
	Description string
	Usage       string
	Cooldown    int64         // milliseconds, >= 0
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Stats are cumulative outcome counters.
type Stats struct {
	Executed  uint64 `json:"executed"`
	Throttled uint64 `json:"throttled"`
	Failed    uint64 `json:"failed"`
	Unknown   uint64 `json:"unknown"`
	Dropped   uint64 `json:"dropped"`
}

// Dispatcher maps command tokens to handlers and gates them through a
// Throttler. Build it with New; the zero value is not usable.
type Dispatcher struct {
	prefix    string
	throttler *throttle.Throttler
	log       logx.Logger
	bus       eventbus.Bus
	out       Responder
	timeout   time.Duration

	workers   int
	queueSize int

	mu   sync.RWMutex
	cmds map[string]Command

	executed  atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
	unknown   atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Dispatcher in New.
type Option func(*Dispatcher)

func WithPrefix(p string) Option {
	return func(d *Dispatcher) {
		if p = strings.TrimSpace(p); p != "" {
			d.prefix = p
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

func WithBus(b eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = b } }

// WithResponder sets where handler replies go.
func WithResponder(r Responder) Option { return func(d *Dispatcher) { d.out = r } }

// WithTimeout bounds every handler run unless the command sets its own Timeout.
func WithTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.timeout = t } }

// WithWorkers sets the DispatchLoop pool size. <=0 means max(2, NumCPU).
func WithWorkers(n int) Option { return func(d *Dispatcher) { d.workers = n } }

// WithQueueSize sets the DispatchLoop job queue capacity. <=0 means 256.
func WithQueueSize(n int) Option { return func(d *Dispatcher) { d.queueSize = n } }

// New builds a Dispatcher around t. The throttler is owned by the caller.
func New(t *throttle.Throttler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prefix:    DefaultPrefix,
		throttler: t,
		cmds:      map[string]Command{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.throttler == nil {
		d.throttler = throttle.New(nil)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

func (d *Dispatcher) Prefix() string { return d.prefix }

// Throttler exposes the cooldown state used by this dispatcher.
func (d *Dispatcher) Throttler() *throttle.Throttler { return d.throttler }

// Register binds token to h and configures its cooldown. Registering the
// same token again replaces both.
func (d *Dispatcher) Register(token string, h HandlerFunc, cooldownMillis int64) error {
	return d.RegisterCommand(Command{Token: token, Cooldown: cooldownMillis, Handle: h})
}

func (d *Dispatcher) RegisterCommand(c Command) error {
	token := throttle.Normalize(c.Token)
	switch {
	case token == "":
		return fmt.Errorf("register: %w: empty command token", ErrInvalidArgument)
	case !hasPrefixFold(token, d.prefix) || len(token) == len(d.prefix):
		return fmt.Errorf("register %q: %w: token must start with %q", token, ErrInvalidArgument, d.prefix)
	case strings.ContainsAny(token, " \t\r\n"):
		return fmt.Errorf("register %q: %w: token must be a single word", token, ErrInvalidArgument)
	case c.Handle == nil:
		return fmt.Errorf("register %q: %w: nil handler", token, ErrInvalidArgument)
	}
	if err := d.throttler.Configure(token, c.Cooldown); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.Token = token
	d.mu.Lock()
	d.cmds[token] = c
	d.mu.Unlock()
	return nil
}

// Commands returns the registered commands sorted by token.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	out := make([]Command, 0, len(d.cmds))
	for _, c := range d.cmds {
		out = append(out, c)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Executed:  d.executed.Load(),
		Throttled: d.throttled.Load(),
		Failed:    d.failed.Load(),
		Unknown:   d.unknown.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// OnMessage runs the command in msg.Text if there is one and it is not in
// cooldown. Handler errors are returned wrapped in ErrHandlerFailure and do
// not record usage.
func (d *Dispatcher) OnMessage(ctx context.Context, msg kit.Message) (Outcome, error) {
	token, args, ok := splitCommand(msg.Text, d.prefix)
	if !ok {
		return OutcomeIgnored, nil
	}

	d.mu.RLock()
	cmd, found := d.cmds[token]
	d.mu.RUnlock()
	if !found {
		d.unknown.Add(1)
		d.publish(EventUnknown, Event{Command: token, Sender: msg.Sender, Target: msg.Target})
		return OutcomeUnknown, nil
	}

	throttled, err := d.throttler.IsThrottled(token)
	if err != nil {
		return OutcomeIgnored, err
	}
	if throttled {
		left, _ := d.throttler.Remaining(token)
		d.throttled.Add(1)
		d.publish(EventThrottled, Event{Command: token, Sender: msg.Sender, Target: msg.Target, Remaining: left})
		return OutcomeThrottled, nil
	}

	rid := newReqID()
	req := &Request{
		Sender:  msg.Sender,
		Target:  msg.Target,
		Command: token,
		Args:    args,
		Text:    msg.Text,
		ReqID:   rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.String("cmd", token),
		),
		Out: d.out,
	}
	timeout := d.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(timeout),
	)

	start := time.Now()
	if err := final(ctx, req); err != nil {
		d.failed.Add(1)
		d.publish(EventFailed, Event{Command: token, Sender: msg.Sender, Target: msg.Target, ReqID: rid, Took: time.Since(start), Err: err.Error()})
		return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrHandlerFailure, token, err)
	}
	if err := d.throttler.RecordUsage(token); err != nil {
		return OutcomeExecuted, err
	}
	d.executed.Add(1)
	d.publish(EventExecuted, Event{Command: token, Sender: msg.Sender, Target: msg.Target, ReqID: rid, Took: time.Since(start)})
	return OutcomeExecuted, nil
}

func (d *Dispatcher) publish(typ string, e Event) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: e})
}
