package config

import (
	"encoding/json"
	"reflect"

	logx "throttlebot/pkg/logx"
)

// Change describes which sections differ between two configs.
type Change struct {
	// Live sections are applied without a restart (logging, stats).
	Live []string
	// Restart sections only take effect after the process restarts.
	Restart []string
}

func (c Change) Empty() bool { return len(c.Live) == 0 && len(c.Restart) == 0 }

// Summarize compares old and next section by section.
func Summarize(old, next *Config) Change {
	var ch Change
	if old == nil || next == nil {
		return ch
	}
	check := func(name string, a, b any, live bool) {
		if sameJSON(a, b) {
			return
		}
		if live {
			ch.Live = append(ch.Live, name)
		} else {
			ch.Restart = append(ch.Restart, name)
		}
	}
	check("bot", old.Bot, next.Bot, false)
	check("telegram", old.Telegram, next.Telegram, false)
	check("commands", old.Commands, next.Commands, false)
	check("dispatch", old.Dispatch, next.Dispatch, false)
	check("storage", old.Storage, next.Storage, false)
	check("logging", old.Logging, next.Logging, true)
	check("stats", old.Stats, next.Stats, true)
	return ch
}

// Fields renders the change for a log line. Secrets are never included.
func (c Change) Fields() []logx.Field {
	return []logx.Field{
		logx.Any("live", c.Live),
		logx.Any("restart_required", c.Restart),
	}
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}
