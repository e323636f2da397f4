package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "throttlebot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: store=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestSQLiteAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "bot.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := st.AppendAudit(ctx, AuditEntry{Event: "command.executed", Command: "!time", Sender: "alice", OK: true, TookMS: 2}); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}
	if err := st.AppendAudit(ctx, AuditEntry{Event: "command.failed", Command: "!version", Error: "boom"}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	sq := st.(*sqliteStore)
	if n, err := sq.count(ctx, "!time"); err != nil || n != 3 {
		t.Fatalf("count(!time) = %d, %v", n, err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendAudit(ctx, AuditEntry{Command: "!time"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("append after close: %v", err)
	}

	// reopen keeps rows
	st2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if n, err := st2.(*sqliteStore).count(ctx, "!version"); err != nil || n != 1 {
		t.Fatalf("count(!version) = %d, %v", n, err)
	}
}

func TestFileAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	_ = st.AppendAudit(ctx, AuditEntry{Event: "command.executed", Command: "!time", OK: true})
	_ = st.AppendAudit(ctx, AuditEntry{Event: "command.failed", Command: "!help", Error: "x"})
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var got []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 || got[0].Command != "!time" || !got[0].OK || got[1].Error != "x" {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].At.IsZero() {
		t.Fatalf("timestamp not filled")
	}
}
