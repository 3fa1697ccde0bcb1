package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

// DefaultEventBuffer is the EventWriter queue size used when none is given.
const DefaultEventBuffer = 256

// EventStore persists events.
type EventStore interface {
	InsertEvent(ctx context.Context, e overlay.Event) error
}

// EventWriter is an overlay.Recorder that queues events and writes them to
// an EventStore from its own goroutine. When the queue is full new events
// are dropped and counted.
type EventWriter struct {
	store   EventStore
	events  chan overlay.Event
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewEventWriter creates a writer with room for size queued events.
func NewEventWriter(store EventStore, size int) *EventWriter {
	if size <= 0 {
		size = DefaultEventBuffer
	}
	return &EventWriter{store: store, events: make(chan overlay.Event, size)}
}

// Record implements overlay.Recorder. It never blocks.
func (w *EventWriter) Record(e overlay.Event) {
	select {
	case w.events <- e:
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Uint64("dropped", n).Msg("Event log queue full, dropping events")
		}
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left with a short deadline.
func (w *EventWriter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case e := <-w.events:
			w.write(ctx, e)
		}
	}
}

func (w *EventWriter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-w.events:
			w.write(ctx, e)
		default:
			return
		}
	}
}

func (w *EventWriter) write(ctx context.Context, e overlay.Event) {
	err := WithRetry(ctx, func() error { return w.store.InsertEvent(ctx, e) }, 2)
	if err != nil {
		log.Error().Err(err).Str("kind", string(e.Kind)).Msg("Failed to write event")
		return
	}
	w.written.Add(1)
}

// Dropped returns the number of events discarded because the queue was full.
func (w *EventWriter) Dropped() uint64 { return w.dropped.Load() }

// Written returns the number of events stored.
func (w *EventWriter) Written() uint64 { return w.written.Load() }
