// Package overlay renders live traffic contacts as markers on a map surface.
//
// A Manager consumes add/update/remove batches from a traffic.Source and
// serializes all of its work onto one goroutine: it keeps one Marker per
// contact identity in a Registry, picks a directional icon for each contact,
// glides markers between fixes, and decides once per batch whether traffic
// should be announced.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// DefaultFrameInterval is the animation tick period (~30 fps).
const DefaultFrameInterval = 33 * time.Millisecond

// opQueueSize bounds the number of batches waiting for the loop.
const opQueueSize = 64

var (
	// ErrInvalidTransition is returned when Enable or Disable is called in
	// a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid overlay state transition")

	// ErrNotEnabled is returned by calls that need a running overlay.
	ErrNotEnabled = errors.New("traffic overlay is not enabled")
)

// Handle identifies a marker on a MapSurface.
type Handle uint64

// MapSurface draws markers. The Manager calls it only from its loop
// goroutine.
type MapSurface interface {
	AddMarker(pos traffic.LatLng, icon Icon) Handle
	RemoveMarker(h Handle)
	SetMarkerIcon(h Handle, icon Icon)
	SetMarkerPosition(h Handle, pos traffic.LatLng)
}

// State is the lifecycle state of a Manager.
type State int

const (
	Disabled State = iota
	Enabling
	Enabled
	Disabling
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	case Disabling:
		return "disabling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options tune a Manager. Zero values select the defaults.
type Options struct {
	// AnimationDuration is how long a marker glides to a new fix
	AnimationDuration time.Duration

	// FrameInterval is the animation tick period
	FrameInterval time.Duration

	// AnnouncementText is passed to the Announcer
	AnnouncementText string

	// Announcer receives at most one announcement per batch
	Announcer Announcer

	// Ownship enables notices for new and escalating traffic
	Ownship *coordinates.Geographic

	// Notifier receives notices; ignored without an Ownship
	Notifier Notifier

	// Recorder receives an Event for everything the overlay does
	Recorder Recorder

	// Clock returns the current time; defaults to time.Now
	Clock func() time.Time
}

type op func(now time.Time)

// MarkerView is a read-only snapshot of a marker.
type MarkerView struct {
	ID             string                 `json:"id"`
	Label          string                 `json:"label"`
	Classification traffic.Classification `json:"classification"`
	Icon           string                 `json:"icon"`
	Position       traffic.LatLng         `json:"position"`
	Heading        float64                `json:"heading"`
	AltitudeFt     float64                `json:"alt_ft"`
	GroundSpeedKt  float64                `json:"gs_kt"`
	Animating      bool                   `json:"animating"`
}

// Manager is the traffic overlay. It implements traffic.Listener so it can
// be registered directly with a traffic.Source.
type Manager struct {
	source  traffic.Source
	surface MapSurface
	opts    Options

	mu    sync.Mutex
	state State
	ops   chan op
	stop  chan struct{}
	done  chan struct{}

	// Owned by the loop goroutine while enabled.
	registry    *Registry
	annunciator *Annunciator
	animations  map[string]*animation
}

// NewManager returns a disabled Manager that will draw traffic from source
// onto surface.
func NewManager(source traffic.Source, surface MapSurface, opts Options) *Manager {
	if opts.AnimationDuration <= 0 {
		opts.AnimationDuration = DefaultAnimationDuration
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.AnnouncementText == "" {
		opts.AnnouncementText = DefaultAnnouncementText
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Manager{
		source:      source,
		surface:     surface,
		opts:        opts,
		registry:    NewRegistry(),
		annunciator: NewAnnunciator(opts.Announcer, opts.AnnouncementText),
		animations:  make(map[string]*animation),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Enable starts the overlay loop and registers with the traffic source.
// If the source refuses, the overlay returns to Disabled.
func (m *Manager) Enable() error {
	m.mu.Lock()
	if m.state != Disabled {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: enable while %s", ErrInvalidTransition, state)
	}
	m.state = Enabling
	m.ops = make(chan op, opQueueSize)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	ops, stop, done := m.ops, m.stop, m.done
	m.mu.Unlock()

	go m.loop(ops, stop, done)

	if err := m.source.Enable(m); err != nil {
		close(stop)
		<-done

		// The source may have pushed batches before failing.
		m.clear()
		m.setState(Disabled)
		return fmt.Errorf("failed to enable traffic source: %w", err)
	}

	m.setState(Enabled)
	log.Info().Msg("Traffic alerts enabled")
	return nil
}

// Disable unregisters from the traffic source, removes every marker from
// the surface and stops the loop. Batches still queued are discarded.
func (m *Manager) Disable() error {
	m.mu.Lock()
	if m.state != Enabled {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: disable while %s", ErrInvalidTransition, state)
	}
	m.state = Disabling
	stop, done := m.stop, m.done
	m.mu.Unlock()

	srcErr := m.source.Disable()

	close(stop)
	<-done

	// The loop has exited, so its state is ours now.
	n := m.registry.Len()
	m.clear()
	m.setState(Disabled)
	log.Info().Int("markers_removed", n).Msg("Traffic alerts disabled")

	if srcErr != nil {
		return fmt.Errorf("failed to disable traffic source: %w", srcErr)
	}
	return nil
}

// OnAdd implements traffic.Listener.
func (m *Manager) OnAdd(added []traffic.Contact) {
	batch := append([]traffic.Contact(nil), added...)
	m.submit("added", len(batch), func(now time.Time) { m.handleAdded(batch, now) })
}

// OnUpdate implements traffic.Listener.
func (m *Manager) OnUpdate(updated []traffic.Contact) {
	batch := append([]traffic.Contact(nil), updated...)
	m.submit("updated", len(batch), func(now time.Time) { m.handleUpdated(batch, now) })
}

// OnRemove implements traffic.Listener.
func (m *Manager) OnRemove(removed []traffic.Contact) {
	batch := append([]traffic.Contact(nil), removed...)
	m.submit("removed", len(batch), func(now time.Time) { m.handleRemoved(batch, now) })
}

func (m *Manager) submit(kind string, n int, fn op) {
	if _, err := m.enqueue(fn); err != nil {
		log.Debug().Str("batch", kind).Int("contacts", n).Msg("Dropping traffic batch, overlay not enabled")
	}
}

// enqueue hands fn to the loop. It returns the loop's done channel so
// callers waiting on fn can notice the loop exiting.
func (m *Manager) enqueue(fn op) (<-chan struct{}, error) {
	m.mu.Lock()
	if m.state != Enabling && m.state != Enabled {
		m.mu.Unlock()
		return nil, ErrNotEnabled
	}
	ops, stop, done := m.ops, m.stop, m.done
	m.mu.Unlock()

	select {
	case ops <- fn:
		return done, nil
	case <-stop:
		return nil, ErrNotEnabled
	}
}

// call runs fn on the loop and waits for it to finish.
func (m *Manager) call(ctx context.Context, fn op) error {
	finished := make(chan struct{})
	done, err := m.enqueue(func(now time.Time) {
		defer close(finished)
		fn(now)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-done:
		return ErrNotEnabled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every batch queued before the call has been processed.
func (m *Manager) Sync(ctx context.Context) error {
	return m.call(ctx, func(time.Time) {})
}

// Markers returns a snapshot of all markers in insertion order.
func (m *Manager) Markers(ctx context.Context) ([]MarkerView, error) {
	var views []MarkerView
	err := m.call(ctx, func(time.Time) {
		for _, mk := range m.registry.Markers() {
			_, animating := m.animations[mk.Contact.ID]
			views = append(views, MarkerView{
				ID:             mk.Contact.ID,
				Label:          mk.Contact.Label(),
				Classification: mk.Contact.Classification,
				Icon:           mk.Icon.ID(),
				Position:       mk.Position,
				Heading:        mk.Contact.Heading,
				AltitudeFt:     mk.Contact.AltitudeFt,
				GroundSpeedKt:  mk.Contact.GroundSpeedKt,
				Animating:      animating,
			})
		}
	})
	return views, err
}

func (m *Manager) loop(ops <-chan op, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case fn := <-ops:
			fn(m.opts.Clock())
		case <-ticker.C:
			m.animate(m.opts.Clock())
		}
	}
}

func (m *Manager) handleAdded(batch []traffic.Contact, now time.Time) {
	for _, c := range batch {
		icon, err := IconFor(c)
		if err != nil {
			log.Error().Err(err).Str("id", c.ID).Msg("Dropping added contact")
			continue
		}
		mk, err := m.registry.Add(c)
		if err != nil {
			log.Error().Err(err).Msg("Contact added twice")
			continue
		}
		mk.Icon = icon
		mk.Handle = m.surface.AddMarker(mk.Position, icon)

		m.notify(c)
		m.record(EventAdded, c, "", now)
		m.annunciator.ObserveAdded(c)
	}
	m.flush(now)
}

func (m *Manager) handleUpdated(batch []traffic.Contact, now time.Time) {
	for _, c := range batch {
		if err := c.Classification.Validate(); err != nil {
			log.Error().Err(err).Str("id", c.ID).Msg("Dropping contact update")
			continue
		}
		mk, prev, err := m.registry.Update(c)
		if errors.Is(err, ErrUnknownIdentity) {
			log.Debug().Str("id", c.ID).Msg("Ignoring update for untracked contact")
			continue
		}

		if c.Classification != prev.Classification || c.Heading != prev.Heading {
			icon, _ := IconFor(c)
			if icon != mk.Icon {
				mk.Icon = icon
				m.surface.SetMarkerIcon(mk.Handle, icon)
			}
		}
		if escalated(prev, c) {
			m.notify(c)
		}
		m.annunciator.ObserveUpdated(prev, c)

		m.animations[c.ID] = &animation{from: mk.Position, to: c.Position(), start: now}
		m.record(EventUpdated, c, "", now)
	}
	m.flush(now)
}

func (m *Manager) handleRemoved(batch []traffic.Contact, now time.Time) {
	for _, c := range batch {
		mk, ok := m.registry.Remove(c.ID)
		if !ok {
			log.Debug().Str("id", c.ID).Msg("Ignoring removal of untracked contact")
			continue
		}
		delete(m.animations, c.ID)
		m.surface.RemoveMarker(mk.Handle)
		m.record(EventRemoved, mk.Contact, "", now)
	}
}

// animate advances every running animation to now. A new fix for a marker
// replaces its animation, so at most one runs per marker.
func (m *Manager) animate(now time.Time) {
	for id, a := range m.animations {
		mk, ok := m.registry.Find(id)
		if !ok {
			delete(m.animations, id)
			continue
		}
		pos, finished := a.at(now, m.opts.AnimationDuration)
		if pos != mk.Position {
			mk.Position = pos
			m.surface.SetMarkerPosition(mk.Handle, pos)
		}
		if finished {
			delete(m.animations, id)
		}
	}
}

func (m *Manager) flush(now time.Time) {
	if m.annunciator.Flush() {
		log.Info().Str("text", m.annunciator.Text()).Msg("Traffic announced")
		m.record(EventAnnounced, traffic.Contact{}, m.annunciator.Text(), now)
	}
}

func (m *Manager) clear() {
	for _, mk := range m.registry.Clear() {
		m.surface.RemoveMarker(mk.Handle)
	}
	m.animations = make(map[string]*animation)
	m.annunciator = NewAnnunciator(m.opts.Announcer, m.opts.AnnouncementText)
}

func (m *Manager) notify(c traffic.Contact) {
	if m.opts.Ownship == nil || m.opts.Notifier == nil {
		return
	}
	m.opts.Notifier.Notify(NewNotice(*m.opts.Ownship, c))
}

func (m *Manager) record(kind EventKind, c traffic.Contact, text string, now time.Time) {
	if m.opts.Recorder == nil {
		return
	}
	m.opts.Recorder.Record(Event{Kind: kind, Contact: c, Text: text, At: now})
}
