package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	kit "throttlebot/internal/transport"
	logx "throttlebot/pkg/logx"
)

// Responder delivers handler output. transport.Adapter satisfies it.
type Responder interface {
	SendText(ctx context.Context, to kit.Target, text string) error
	SendAction(ctx context.Context, to kit.Target, text string) error
}

var errNoResponder = errors.New("no responder configured")

// Request is the invocation context handed to a command handler.
type Request struct {
	Sender  string
	Target  kit.Target // passed through untouched
	Command string     // canonical token, e.g. "!time"
	Args    []string
	Text    string // raw message text
	ReqID   string

	Logger logx.Logger
	Out    Responder
}

// Reply sends text back to the request target.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.Out == nil {
		return errNoResponder
	}
	return r.Out.SendText(ctx, r.Target, text)
}

// Action sends an emote-style line to the request target.
func (r *Request) Action(ctx context.Context, text string) error {
	if r.Out == nil {
		return errNoResponder
	}
	return r.Out.SendAction(ctx, r.Target, text)
}

// splitCommand returns the lowercased first word of text and the remaining
// words. ok is false when text does not start with prefix; leading
// whitespace counts as not starting with it.
func splitCommand(text, prefix string) (token string, args []string, ok bool) {
	if text == "" || !hasPrefixFold(text, prefix) {
		return "", nil, false
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func newReqID() string {
	id := uuid.NewString()
	return id[:8]
}
