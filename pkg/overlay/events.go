package overlay

import (
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// EventKind classifies recorded overlay events.
type EventKind string

const (
	EventAdded     EventKind = "added"
	EventUpdated   EventKind = "updated"
	EventRemoved   EventKind = "removed"
	EventAnnounced EventKind = "announced"
)

// Event is a record of something the overlay did.
type Event struct {
	Kind    EventKind
	Contact traffic.Contact
	Text    string
	At      time.Time
}

// Recorder persists overlay events. Record is called from the overlay loop
// and must not block.
type Recorder interface {
	Record(e Event)
}
