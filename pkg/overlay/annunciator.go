package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// DefaultAnnouncementText is spoken or shown when traffic needs attention.
const DefaultAnnouncementText = "Traffic"

// Announcer emits an audible or visual announcement. Announce must not
// block; a new announcement interrupts any announcement still in progress.
type Announcer interface {
	Announce(text string)
}

// AnnouncerFunc adapts a function to the Announcer interface.
type AnnouncerFunc func(text string)

func (f AnnouncerFunc) Announce(text string) { f(text) }

// Annunciator decides once per batch whether traffic should be announced.
// It is driven from the Manager's loop and is not safe for concurrent use.
type Annunciator struct {
	announcer Announcer
	text      string
	pending   bool
}

// NewAnnunciator returns an annunciator that announces text through a.
// A nil announcer makes Flush report decisions without announcing.
func NewAnnunciator(a Announcer, text string) *Annunciator {
	if text == "" {
		text = DefaultAnnouncementText
	}
	return &Annunciator{announcer: a, text: text}
}

// ObserveAdded records a newly sighted contact.
func (a *Annunciator) ObserveAdded(c traffic.Contact) {
	if c.Classification == traffic.Alert {
		a.pending = true
	}
}

// ObserveUpdated records an update of a tracked contact. Only an escalation
// from situational awareness to alert is announced.
func (a *Annunciator) ObserveUpdated(prev, next traffic.Contact) {
	if escalated(prev, next) {
		a.pending = true
	}
}

// Flush ends the batch: it announces once if anything in the batch warranted
// it, resets, and reports whether an announcement was made.
func (a *Annunciator) Flush() bool {
	if !a.pending {
		return false
	}
	a.pending = false
	if a.announcer != nil {
		a.announcer.Announce(a.text)
	}
	return true
}

// Text returns the announcement text.
func (a *Annunciator) Text() string { return a.text }

func escalated(prev, next traffic.Contact) bool {
	return prev.Classification == traffic.SituationalAwareness && next.Classification == traffic.Alert
}

// SpeakFunc performs one blocking announcement. It should return promptly
// once ctx is cancelled.
type SpeakFunc func(ctx context.Context, text string) error

// PreemptingAnnouncer runs a SpeakFunc in the background with a flush-queue
// policy: each Announce cancels the announcement in progress, waits for it
// to return, then speaks. Announcements never overlap and never pile up.
type PreemptingAnnouncer struct {
	speak SpeakFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewPreemptingAnnouncer wraps speak.
func NewPreemptingAnnouncer(speak SpeakFunc) *PreemptingAnnouncer {
	return &PreemptingAnnouncer{speak: speak}
}

// Announce interrupts the current announcement, if any, and starts text.
func (p *PreemptingAnnouncer) Announce(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := p.done
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.speak(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("text", text).Msg("Announcement failed")
		}
	}()
}

// Close cancels any announcement in progress and waits for it to finish.
// Later calls to Announce are ignored.
func (p *PreemptingAnnouncer) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}
