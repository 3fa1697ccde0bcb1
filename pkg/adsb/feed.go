package adsb

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// ErrFeedRunning is returned when a Feed is enabled twice.
var ErrFeedRunning = errors.New("traffic feed already running")

// DefaultPollInterval is used when FeedConfig.Interval is zero.
const DefaultPollInterval = 5 * time.Second

// AlertCriteria decides which aircraft are alert traffic.
type AlertCriteria struct {
	// RadiusNM is the horizontal alert range from the ownship
	RadiusNM float64

	// AltitudeBandFt is the vertical alert range above and below the ownship
	AltitudeBandFt float64
}

// FeedConfig configures a Feed.
type FeedConfig struct {
	// Center is the ownship position; aircraft are searched around it
	Center coordinates.Geographic

	// RadiusNM is the search radius
	RadiusNM float64

	// Interval is the time between polls
	Interval time.Duration

	Alert AlertCriteria
	Retry RetryConfig
}

// Classify tags an aircraft as alert traffic when it is inside both the
// horizontal and vertical alert range of center.
func Classify(center coordinates.Geographic, ac Aircraft, criteria AlertCriteria) traffic.Classification {
	pos := coordinates.Geographic{Latitude: ac.Latitude, Longitude: ac.Longitude, AltitudeFt: ac.Altitude}
	if coordinates.DistanceNauticalMiles(center, pos) > criteria.RadiusNM {
		return traffic.SituationalAwareness
	}
	if d := ac.Altitude - center.AltitudeFt; d > criteria.AltitudeBandFt || d < -criteria.AltitudeBandFt {
		return traffic.SituationalAwareness
	}
	return traffic.Alert
}

// Batch is the difference between two polls.
type Batch struct {
	Added   []traffic.Contact
	Updated []traffic.Contact
	Removed []traffic.Contact
}

// Empty reports whether the batch carries nothing.
func (b Batch) Empty() bool {
	return len(b.Added) == 0 && len(b.Updated) == 0 && len(b.Removed) == 0
}

// Diff compares the contacts of a new poll against the previously known
// contacts. Contacts whose report did not change are neither added nor
// updated. Only the first report of an identity in current is used.
// Removed contacts are sorted by ID.
func Diff(known map[string]traffic.Contact, current []traffic.Contact) Batch {
	var b Batch
	seen := make(map[string]bool, len(current))
	for _, c := range current {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		prev, ok := known[c.ID]
		switch {
		case !ok:
			b.Added = append(b.Added, c)
		case changed(prev, c):
			b.Updated = append(b.Updated, c)
		}
	}

	for id, c := range known {
		if !seen[id] {
			b.Removed = append(b.Removed, c)
		}
	}
	sort.Slice(b.Removed, func(i, j int) bool { return b.Removed[i].ID < b.Removed[j].ID })
	return b
}

// Apply folds the batch into known.
func (b Batch) Apply(known map[string]traffic.Contact) {
	for _, c := range b.Added {
		known[c.ID] = c
	}
	for _, c := range b.Updated {
		known[c.ID] = c
	}
	for _, c := range b.Removed {
		delete(known, c.ID)
	}
}

func changed(a, b traffic.Contact) bool {
	return a.Latitude != b.Latitude ||
		a.Longitude != b.Longitude ||
		a.AltitudeFt != b.AltitudeFt ||
		a.Heading != b.Heading ||
		a.GroundSpeedKt != b.GroundSpeedKt ||
		a.Classification != b.Classification ||
		a.Callsign != b.Callsign
}

// Feed polls a DataSource and pushes traffic batches to one listener. It
// implements traffic.Source.
type Feed struct {
	source DataSource
	cfg    FeedConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a feed over source.
func NewFeed(source DataSource, cfg FeedConfig) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Feed{source: source, cfg: cfg}
}

// Enable starts polling and delivering batches to l.
func (f *Feed) Enable(l traffic.Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return ErrFeedRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, l, f.done)

	log.Info().
		Float64("radius_nm", f.cfg.RadiusNM).
		Dur("interval", f.cfg.Interval).
		Msg("Traffic feed started")
	return nil
}

// Disable stops polling and waits for the poll goroutine to exit. The
// listener is not called after Disable returns.
func (f *Feed) Disable() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	log.Info().Msg("Traffic feed stopped")
	return nil
}

func (f *Feed) run(ctx context.Context, l traffic.Listener, done chan<- struct{}) {
	defer close(done)

	known := make(map[string]traffic.Contact)
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		f.poll(ctx, l, known)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) poll(ctx context.Context, l traffic.Listener, known map[string]traffic.Contact) {
	center := f.cfg.Center
	aircraft, err := RetryWithBackoffResult(ctx, f.cfg.Retry, func() ([]Aircraft, error) {
		return f.source.GetAircraft(ctx, center.Latitude, center.Longitude, f.cfg.RadiusNM)
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to poll traffic")
		}
		return
	}

	contacts := make([]traffic.Contact, 0, len(aircraft))
	for _, ac := range aircraft {
		if ac.ICAO == "" {
			continue
		}
		contacts = append(contacts, ac.Contact(Classify(center, ac, f.cfg.Alert)))
	}

	b := Diff(known, contacts)
	b.Apply(known)
	if b.Empty() || ctx.Err() != nil {
		return
	}

	log.Debug().
		Int("added", len(b.Added)).
		Int("updated", len(b.Updated)).
		Int("removed", len(b.Removed)).
		Msg("Traffic batch")

	if len(b.Added) > 0 {
		l.OnAdd(b.Added)
	}
	if len(b.Updated) > 0 {
		l.OnUpdate(b.Updated)
	}
	if len(b.Removed) > 0 {
		l.OnRemove(b.Removed)
	}
}
