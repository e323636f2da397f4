package dispatch

import (
	"time"

	kit "throttlebot/internal/transport"
)

// Event types published on the bus.
const (
	EventExecuted  = "command.executed"
	EventFailed    = "command.failed"
	EventThrottled = "command.throttled"
	EventUnknown   = "command.unknown"
)

// Event is the Data payload of dispatch bus events.
type Event struct {
	Command   string
	Sender    string
	Target    kit.Target
	ReqID     string
	Took      time.Duration
	Remaining time.Duration // throttled only
	Err       string        // failed only
}
