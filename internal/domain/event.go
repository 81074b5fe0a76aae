package domain

import "time"

// EventKind identifica el tipo de notificación.
type EventKind string

const (
	EventStartup           EventKind = "startup"
	EventEntered           EventKind = "entered"
	EventCutloss           EventKind = "cutloss"
	EventWin               EventKind = "win"
	EventLoss              EventKind = "loss"
	EventError             EventKind = "error"
	EventStatus            EventKind = "status"
	EventStopped           EventKind = "stopped"
	EventResolutionOverdue EventKind = "resolution_overdue"
)

// Event es una notificación saliente. Position y Stats son opcionales según el tipo.
type Event struct {
	Kind     EventKind
	At       time.Time
	Message  string
	Position *Position
	Stats    *Stats
	Fields   map[string]any
}
