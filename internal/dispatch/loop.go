package dispatch

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"throttlebot/internal/runtime/supervisor"
	kit "throttlebot/internal/transport"
	logx "throttlebot/pkg/logx"
)

// DispatchLoop consumes updates until ctx is cancelled or updates is closed.
// Messages are handed to a bounded worker pool; when the queue is full the
// message is dropped and counted.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := d.workers
	if workers <= 0 {
		workers = max(2, runtime.NumCPU())
	}
	queueSize := d.queueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	jobs := make(chan kit.Message, queueSize)

	sup := supervisor.New(ctx,
		supervisor.WithLogger(d.log.With(logx.String("comp", "dispatch.pool"))),
		supervisor.WithCancelOnError(false),
	)
	d.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", queueSize), logx.String("prefix", d.prefix))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case msg, ok := <-jobs:
					if !ok {
						return nil
					}
					d.handle(c, idx, msg)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		// Workers exit on the closed channel or the cancelled context.
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.log.Info("command dispatcher stopped", logx.Any("stats", d.Stats()))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				d.log.Info("updates channel closed")
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			select {
			case jobs <- *up.Message:
			default:
				d.dropped.Add(1)
				d.log.Warn("command queue full; message dropped",
					logx.String("sender", up.Message.Sender),
					logx.String("target", up.Message.Target.String()),
					logx.Int("job_queue_cap", queueSize),
				)
			}
		}
	}
}

// handle runs one message and logs outcomes the core leaves to its caller.
func (d *Dispatcher) handle(ctx context.Context, worker int, msg kit.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	outcome, err := d.OnMessage(ctx, msg)
	fields := []logx.Field{
		logx.String("sender", msg.Sender),
		logx.String("target", msg.Target.String()),
	}
	switch outcome {
	case OutcomeUnknown:
		d.log.Debug("unknown command", append(fields, logx.String("text", msg.Text))...)
	case OutcomeThrottled:
		token, _, _ := splitCommand(msg.Text, d.prefix)
		left, _ := d.throttler.Remaining(token)
		d.log.Info("command throttled", append(fields, logx.String("cmd", token), logx.Duration("retry_in", left))...)
	case OutcomeFailed:
		// MWRequestLog already logged the handler error.
	default:
		if err != nil && !errors.Is(err, ErrHandlerFailure) {
			d.log.Error("dispatch error", append(fields, logx.Err(err))...)
		}
	}
}
