// Package storage persists the command audit log.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "file":   append-only JSON Lines file
//
// An empty driver or "none" disables storage.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// AuditEntry records one dispatched command.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Event    string    `json:"event"`
	Command  string    `json:"command"`
	Sender   string    `json:"sender,omitempty"`
	ChatID   int64     `json:"chat_id,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Target   string    `json:"target,omitempty"`
	ReqID    string    `json:"req_id,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
