package engine

import (
	"time"
)

// EventType captures the lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeLaunching EventType = "launching"
	EventTypeRunning   EventType = "running"
	EventTypeExited    EventType = "exited"
	EventTypeSignaling EventType = "signaling"
	EventTypeWaiting   EventType = "waiting"
	EventTypeIgnored   EventType = "ignored"
	EventTypeError     EventType = "error"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Message    string
	Level      string
	Pid        int
	Generation int
	Err        error
}

func sendEvent(events chan<- Event, t EventType, level string, gen Generation, message string, err error) {
	if events == nil {
		return
	}
	if level == "" {
		level = "info"
	}
	events <- Event{
		Timestamp:  time.Now(),
		Type:       t,
		Message:    message,
		Level:      level,
		Pid:        gen.Pid,
		Generation: gen.Number,
		Err:        err,
	}
}
