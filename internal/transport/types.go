package transport

import (
	"context"
	"strconv"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound chat line.
type Message struct {
	ID         int
	Target     Target
	Sender     string // stable sender identity (user id, nick)
	SenderName string // display name, may be empty
	Text       string
}

// Target identifies where a message came from and where replies go.
// ChatID/ThreadID are used by numeric transports (Telegram); Name by the rest.
type Target struct {
	ChatID   int64
	ThreadID int
	Name     string
}

func (t Target) String() string {
	if t.Name != "" {
		return t.Name
	}
	s := strconv.FormatInt(t.ChatID, 10)
	if t.ThreadID != 0 {
		s += "/" + strconv.Itoa(t.ThreadID)
	}
	return s
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to Target, text string) error
	// SendAction sends an emote-style line (IRC /me). Adapters without native
	// support render it as text.
	SendAction(ctx context.Context, to Target, text string) error
}
