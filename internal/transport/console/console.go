// Package console is a line-based transport over an io.Reader/io.Writer pair,
// used to drive the bot from a terminal without a chat network.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	kit "throttlebot/internal/transport"
	logx "throttlebot/pkg/logx"
)

// Target is the single channel the console adapter serves.
var Target = kit.Target{Name: "console"}

type Adapter struct {
	in     io.Reader
	sender string
	log    logx.Logger

	mu  sync.Mutex // serializes writes
	out io.Writer

	done chan struct{}
	once sync.Once
}

func New(in io.Reader, out io.Writer, sender string, log logx.Logger) *Adapter {
	if sender == "" {
		sender = "console"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{in: in, out: out, sender: sender, log: log, done: make(chan struct{})}
}

// Start reads lines in the background until EOF or ctx is done. The reader
// goroutine may outlive Stop when in blocks (e.g. stdin).
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	go func() {
		sc := bufio.NewScanner(a.in)
		id := 0
		for sc.Scan() {
			id++
			m := kit.Message{ID: id, Target: Target, Sender: a.sender, SenderName: a.sender, Text: sc.Text()}
			select {
			case out <- kit.Update{Kind: kit.UpdateMessage, Message: &m}:
			case <-ctx.Done():
				return
			case <-a.done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			a.log.Warn("console read failed", logx.Err(err))
		}
		a.log.Debug("console input closed")
	}()
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.once.Do(func() { close(a.done) })
	return nil
}

func (a *Adapter) SendText(_ context.Context, to kit.Target, text string) error {
	return a.write(fmt.Sprintf("[%s] %s\n", to, text))
}

func (a *Adapter) SendAction(_ context.Context, to kit.Target, text string) error {
	return a.write(fmt.Sprintf("[%s] * %s\n", to, text))
}

func (a *Adapter) write(s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := io.WriteString(a.out, s)
	return err
}
