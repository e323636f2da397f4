package app

import (
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"throttlebot/internal/dispatch"
	"throttlebot/internal/eventbus"
	logx "throttlebot/pkg/logx"
)

// statsReporter logs dispatch counters on a cron schedule.
type statsReporter struct {
	log  logx.Logger
	d    *dispatch.Dispatcher
	bus  eventbus.Bus
	cron *cron.Cron

	mu       sync.Mutex
	schedule string
	entry    cron.EntryID
	last     dispatch.Stats
}

func newStatsReporter(d *dispatch.Dispatcher, bus eventbus.Bus, log logx.Logger) *statsReporter {
	return &statsReporter{
		log:  log,
		d:    d,
		bus:  bus,
		cron: cron.New(cron.WithLogger(cronLogger{log: log})),
	}
}

// Schedule replaces the active schedule. An empty spec disables reporting.
func (r *statsReporter) Schedule(spec string) error {
	spec = strings.TrimSpace(spec)
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec == r.schedule && (spec == "" || r.entry != 0) {
		return nil
	}
	if r.entry != 0 {
		r.cron.Remove(r.entry)
		r.entry = 0
	}
	r.schedule = spec
	if spec == "" {
		r.log.Info("stats report disabled")
		return nil
	}
	id, err := r.cron.AddFunc(spec, r.report)
	if err != nil {
		return err
	}
	r.entry = id
	r.log.Info("stats report scheduled", logx.String("schedule", spec))
	return nil
}

func (r *statsReporter) Start() { r.cron.Start() }

// Stop halts the scheduler and waits for a running report.
func (r *statsReporter) Stop() { <-r.cron.Stop().Done() }

func (r *statsReporter) report() {
	cur := r.d.Stats()
	r.mu.Lock()
	prev := r.last
	r.last = cur
	r.mu.Unlock()

	r.log.Info("dispatch stats",
		logx.Uint64("executed", cur.Executed),
		logx.Uint64("throttled", cur.Throttled),
		logx.Uint64("failed", cur.Failed),
		logx.Uint64("unknown", cur.Unknown),
		logx.Uint64("dropped", cur.Dropped),
		logx.Uint64("executed_delta", cur.Executed-prev.Executed),
		logx.Uint64("throttled_delta", cur.Throttled-prev.Throttled),
		logx.Uint64("bus_dropped", eventbus.Dropped(r.bus)),
	)
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Warn("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
