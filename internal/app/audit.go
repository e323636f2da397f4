package app

import (
	"context"
	"time"

	"throttlebot/internal/dispatch"
	"throttlebot/internal/eventbus"
	"throttlebot/internal/storage"
	logx "throttlebot/pkg/logx"
)

const auditWriteTimeout = 2 * time.Second

// runAudit appends executed and failed commands to the store until ctx is done.
func runAudit(ctx context.Context, bus eventbus.Bus, store storage.Store, log logx.Logger) {
	events, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			entry, ok := auditEntry(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
			err := store.AppendAudit(wctx, entry)
			cancel()
			if err != nil {
				log.Warn("audit append failed", logx.String("cmd", entry.Command), logx.Err(err))
			}
		}
	}
}

func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	if e.Type != dispatch.EventExecuted && e.Type != dispatch.EventFailed {
		return storage.AuditEntry{}, false
	}
	de, ok := e.Data.(dispatch.Event)
	if !ok {
		return storage.AuditEntry{}, false
	}
	return storage.AuditEntry{
		At:       e.Time,
		Event:    e.Type,
		Command:  de.Command,
		Sender:   de.Sender,
		ChatID:   de.Target.ChatID,
		ThreadID: de.Target.ThreadID,
		Target:   de.Target.String(),
		ReqID:    de.ReqID,
		OK:       e.Type == dispatch.EventExecuted,
		Error:    de.Err,
		TookMS:   de.Took.Milliseconds(),
	}, true
}
