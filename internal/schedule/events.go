package schedule

import (
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
)

// Event types published on the bus passed in Options.Bus.
const (
	EventScheduled = "schedule.scheduled"
	EventCancelled = "schedule.cancelled"
	EventFired     = "schedule.fired"
	EventFailed    = "schedule.failed"
)

// EventData is the payload of every schedule event.
type EventData struct {
	Action ScheduledAction
	// Replaced is set on EventScheduled when a pending action for the same key was dropped.
	Replaced bool
	// Err is the executor error text on EventFailed.
	Err string
}

func publish(bus eventbus.Bus, typ string, d EventData) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: d})
}
