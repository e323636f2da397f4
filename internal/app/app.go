// Package app wires configuration, transport, dispatch and the supporting
// services into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"throttlebot/internal/clock"
	"throttlebot/internal/commands"
	"throttlebot/internal/config"
	"throttlebot/internal/dispatch"
	"throttlebot/internal/eventbus"
	"throttlebot/internal/runtime/supervisor"
	"throttlebot/internal/storage"
	"throttlebot/internal/throttle"
	kit "throttlebot/internal/transport"
	"throttlebot/internal/transport/console"
	"throttlebot/internal/transport/telegram"
	logx "throttlebot/pkg/logx"
)

// Options are process-level overrides that do not live in the config file.
type Options struct {
	// Token overrides telegram.token.
	Token string
	// PromptToken is asked for a token when neither Token nor the config has one.
	PromptToken func() (string, error)

	// Console runs the bot on In/Out instead of Telegram.
	Console bool
	In      io.Reader
	Out     io.Writer

	// Clock defaults to the system clock.
	Clock clock.Clock
}

type App struct {
	cfgPath string
	name    string
	version string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter    kit.Adapter
	dispatcher *dispatch.Dispatcher
	stats      *statsReporter

	updates chan kit.Update
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var ad kit.Adapter
	if opts.Console {
		in, out := opts.In, opts.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		c := console.New(in, out, "console", logx.NewConsole("INFO").With(logx.String("comp", "console")))
		ad = c
	} else {
		tg, err := newTelegram(cfg, opts)
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// the chat sink is attached in Start once the transport runs
	logSvc, log := logx.New(mapLogConfig(cfg, opts.Console), nil)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	handlerTimeout, err := cfg.Dispatch.HandlerTimeoutOrDefault()
	if err != nil {
		closeStore(store)
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	d := dispatch.New(throttle.New(clk),
		dispatch.WithPrefix(cfg.CommandPrefix()),
		dispatch.WithLogger(log.With(logx.String("comp", "dispatch"))),
		dispatch.WithBus(bus),
		dispatch.WithResponder(ad),
		dispatch.WithTimeout(handlerTimeout),
		dispatch.WithWorkers(cfg.Dispatch.Workers),
		dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
	)

	loc, err := mapLocation(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	version := strings.TrimSpace(cfg.Bot.Version)
	if version == "" {
		version = commands.ResolveVersion()
	}
	if err := commands.Register(d, commands.Options{
		Clock:     clk,
		Location:  loc,
		Version:   version,
		Cooldowns: cfg.Cooldowns(),
	}); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("register commands: %w", err)
	}
	if err := checkCommandKeys(d, cfg); err != nil {
		closeStore(store)
		return nil, err
	}

	name := strings.TrimSpace(cfg.Bot.Name)
	if name == "" {
		name = "throttlebot"
	}
	return &App{
		cfgPath:    cfgPath,
		name:       name,
		version:    version,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		adapter:    ad,
		dispatcher: d,
		stats:      newStatsReporter(d, bus, log.With(logx.String("comp", "stats"))),
		updates:    make(chan kit.Update, 256),
	}, nil
}

func newTelegram(cfg *config.Config, opts Options) (*telegram.Adapter, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		token = strings.TrimSpace(cfg.Telegram.Token)
	}
	if token == "" && opts.PromptToken != nil {
		t, err := opts.PromptToken()
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(t)
	}
	if token == "" {
		return nil, errors.New("telegram token is required (flag, BOT_TOKEN or telegram.token)")
	}
	pollTimeout, err := cfg.Telegram.PollTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:          token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
}

func (a *App) Name() string    { return a.name }
func (a *App) Version() string { return a.version }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return checkCommandKeys(a.dispatcher, cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.logs.SetSender(a.adapter)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.dispatcher.DispatchLoop(c, a.updates)
	})

	if a.store != nil {
		a.sup.Go0("audit", func(c context.Context) {
			runAudit(c, a.bus, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	if err := a.stats.Schedule(a.cfgm.Get().Stats.Schedule); err != nil {
		return fmt.Errorf("stats.schedule: %w", err)
	}
	a.stats.Start()

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("transport", a.transportName()),
		logx.Bool("audit", a.store != nil),
		logx.Int("commands", len(a.dispatcher.Commands())),
	)
	return nil
}

func (a *App) transportName() string {
	if _, ok := a.adapter.(*console.Adapter); ok {
		return "console"
	}
	return "telegram"
}

// reloadLoop applies live config sections and reports the rest as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	applied := a.cfgm.Get()
	consoleMode := a.transportName() == "console"
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}

			ch := config.Summarize(applied, next)
			applied = next
			if ch.Empty() {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(mapLogConfig(next, consoleMode))
			if err := a.stats.Schedule(next.Stats.Schedule); err != nil {
				a.log.Warn("invalid stats schedule; keeping previous", logx.Err(err))
			}
			if len(ch.Restart) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect",
					logx.String("sections", strings.Join(ch.Restart, ",")))
			}
			a.log.Info("config reloaded", ch.Fields()...)
		}
	}
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("stats", time.Second, func(context.Context) error { a.stats.Stop(); return nil })
	a.logs.SetSender(nil)
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Any("stats", a.dispatcher.Stats()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
