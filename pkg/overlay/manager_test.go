package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

type fakeSource struct {
	mu        sync.Mutex
	listener  traffic.Listener
	enableErr error
	disabled  int
}

func (s *fakeSource) Enable(l traffic.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enableErr != nil {
		return s.enableErr
	}
	s.listener = l
	return nil
}

func (s *fakeSource) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = nil
	s.disabled++
	return nil
}

// pushThenFailSource delivers one batch during Enable and then refuses
// the first registration.
type pushThenFailSource struct {
	fakeSource
	batch  []traffic.Contact
	failed bool
}

func (s *pushThenFailSource) Enable(l traffic.Listener) error {
	if s.failed {
		return s.fakeSource.Enable(l)
	}
	s.failed = true
	l.OnAdd(s.batch)
	if m, ok := l.(*Manager); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Sync(ctx)
	}
	return errors.New("feed unavailable")
}

type surfaceMarker struct {
	pos  traffic.LatLng
	icon Icon
}

type fakeSurface struct {
	mu        sync.Mutex
	next      Handle
	markers   map[Handle]surfaceMarker
	iconSets  int
	positions []traffic.LatLng
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{markers: make(map[Handle]surfaceMarker)}
}

func (s *fakeSurface) AddMarker(pos traffic.LatLng, icon Icon) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.markers[s.next] = surfaceMarker{pos: pos, icon: icon}
	return s.next
}

func (s *fakeSurface) RemoveMarker(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, h)
}

func (s *fakeSurface) SetMarkerIcon(h Handle, icon Icon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.markers[h]
	m.icon = icon
	s.markers[h] = m
	s.iconSets++
}

func (s *fakeSurface) SetMarkerPosition(h Handle, pos traffic.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.markers[h]
	m.pos = pos
	s.markers[h] = m
	s.positions = append(s.positions, pos)
}

func (s *fakeSurface) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

func (s *fakeSurface) only(t *testing.T) surfaceMarker {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.markers) != 1 {
		t.Fatalf("Expected exactly 1 marker on surface, got %d", len(s.markers))
	}
	for _, m := range s.markers {
		return m
	}
	return surfaceMarker{}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingRecorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type managerFixture struct {
	source    *fakeSource
	surface   *fakeSurface
	announcer *recordingAnnouncer
	clock     *fakeClock
	recorder  *recordingRecorder
	manager   *Manager
}

func newManagerFixture(t *testing.T, opts Options) *managerFixture {
	t.Helper()
	f := &managerFixture{
		source:    &fakeSource{},
		surface:   newFakeSurface(),
		announcer: &recordingAnnouncer{},
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		recorder:  &recordingRecorder{},
	}
	opts.Announcer = f.announcer
	opts.Clock = f.clock.Now
	opts.Recorder = f.recorder
	f.manager = NewManager(f.source, f.surface, opts)

	if err := f.manager.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	t.Cleanup(func() {
		if f.manager.State() == Enabled {
			f.manager.Disable()
		}
	})
	return f
}

func (f *managerFixture) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.manager.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func (f *managerFixture) step(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.manager.call(ctx, f.manager.animate); err != nil {
		t.Fatalf("animate failed: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	t.Run("Enable registers with source", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		if f.manager.State() != Enabled {
			t.Errorf("Expected enabled, got %s", f.manager.State())
		}
		if f.source.listener != f.manager {
			t.Error("Expected manager registered as listener")
		}
	})

	t.Run("Enable twice is rejected", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		if err := f.manager.Enable(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Disable when disabled is rejected", func(t *testing.T) {
		m := NewManager(&fakeSource{}, newFakeSurface(), Options{})
		if err := m.Disable(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Source failure leaves overlay disabled", func(t *testing.T) {
		boom := errors.New("boom")
		m := NewManager(&fakeSource{enableErr: boom}, newFakeSurface(), Options{})
		if err := m.Enable(); !errors.Is(err, boom) {
			t.Errorf("Expected wrapped source error, got %v", err)
		}
		if m.State() != Disabled {
			t.Errorf("Expected disabled, got %s", m.State())
		}
	})

	t.Run("Source failure after pushing a batch leaves no markers", func(t *testing.T) {
		source := &pushThenFailSource{batch: []traffic.Contact{{ID: "a", Latitude: 1, Longitude: 1}}}
		surface := newFakeSurface()
		m := NewManager(source, surface, Options{})

		if err := m.Enable(); err == nil {
			t.Fatal("Expected enable to fail")
		}
		if m.State() != Disabled {
			t.Errorf("Expected disabled, got %s", m.State())
		}
		if surface.len() != 0 || m.registry.Len() != 0 {
			t.Fatalf("Expected no markers, got surface=%d registry=%d", surface.len(), m.registry.Len())
		}

		if err := m.Enable(); err != nil {
			t.Fatalf("Re-enable failed: %v", err)
		}
		defer m.Disable()
		m.OnAdd([]traffic.Contact{{ID: "a", Latitude: 1, Longitude: 1}})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Sync(ctx); err != nil {
			t.Fatalf("Sync failed: %v", err)
		}
		if surface.len() != 1 {
			t.Errorf("Expected contact re-added after re-enable, got %d markers", surface.len())
		}
	})

	t.Run("Disable clears all markers", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{
			{ID: "a", Latitude: 1, Longitude: 1},
			{ID: "b", Latitude: 2, Longitude: 2},
		})
		f.sync(t)
		if f.surface.len() != 2 {
			t.Fatalf("Expected 2 markers, got %d", f.surface.len())
		}

		if err := f.manager.Disable(); err != nil {
			t.Fatalf("Disable failed: %v", err)
		}
		if f.surface.len() != 0 {
			t.Errorf("Expected surface cleared, got %d markers", f.surface.len())
		}
		if f.source.disabled != 1 {
			t.Errorf("Expected source disabled once, got %d", f.source.disabled)
		}
	})

	t.Run("Batches are dropped while disabled", func(t *testing.T) {
		surface := newFakeSurface()
		m := NewManager(&fakeSource{}, surface, Options{})
		m.OnAdd([]traffic.Contact{{ID: "a"}})
		if surface.len() != 0 {
			t.Error("Expected no markers while disabled")
		}
		if _, err := m.Markers(context.Background()); !errors.Is(err, ErrNotEnabled) {
			t.Errorf("Expected ErrNotEnabled, got %v", err)
		}
	})

	t.Run("Re-enable starts from an empty registry", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "a"}})
		f.sync(t)
		f.manager.Disable()

		if err := f.manager.Enable(); err != nil {
			t.Fatalf("Re-enable failed: %v", err)
		}
		f.manager.OnAdd([]traffic.Contact{{ID: "a"}})
		f.sync(t)
		if f.surface.len() != 1 {
			t.Errorf("Expected 1 marker after re-enable, got %d", f.surface.len())
		}
	})
}

// TestManagerTrafficScenario walks one contact through add, escalation,
// turn, motion and removal.
func TestManagerTrafficScenario(t *testing.T) {
	f := newManagerFixture(t, Options{AnimationDuration: time.Second})

	// Added as situational awareness heading north
	f.manager.OnAdd([]traffic.Contact{{ID: "abc123", Latitude: 10, Longitude: 20, Heading: 0}})
	f.sync(t)

	m := f.surface.only(t)
	if got := m.icon.ID(); got != "sa_traffic_marker_icon_n" {
		t.Errorf("Expected sa north icon, got %s", got)
	}
	if m.pos != (traffic.LatLng{Latitude: 10, Longitude: 20}) {
		t.Errorf("Expected marker at fix, got %+v", m.pos)
	}
	if f.announcer.count() != 0 {
		t.Error("Expected no announcement for situational awareness")
	}

	// Escalates to alert, turns east, moves
	f.manager.OnUpdate([]traffic.Contact{{ID: "abc123", Latitude: 12, Longitude: 22, Heading: 90, Classification: traffic.Alert}})
	f.sync(t)

	m = f.surface.only(t)
	if got := m.icon.ID(); got != "traffic_marker_icon_e" {
		t.Errorf("Expected alert east icon, got %s", got)
	}
	if f.announcer.count() != 1 {
		t.Errorf("Expected 1 announcement after escalation, got %d", f.announcer.count())
	}

	// Halfway through the animation
	f.step(t, 500*time.Millisecond)
	m = f.surface.only(t)
	want := traffic.LatLng{Latitude: 11, Longitude: 21}
	if !closeLatLng(m.pos, want) {
		t.Errorf("Expected marker at %+v mid-animation, got %+v", want, m.pos)
	}

	// Animation completes at the fix
	f.step(t, 600*time.Millisecond)
	m = f.surface.only(t)
	if m.pos != (traffic.LatLng{Latitude: 12, Longitude: 22}) {
		t.Errorf("Expected marker at final fix, got %+v", m.pos)
	}

	// Another alert update for an already alerting contact is silent
	f.manager.OnUpdate([]traffic.Contact{{ID: "abc123", Latitude: 12, Longitude: 22, Heading: 90, Classification: traffic.Alert}})
	f.sync(t)
	if f.announcer.count() != 1 {
		t.Errorf("Expected no new announcement, got %d", f.announcer.count())
	}

	f.manager.OnRemove([]traffic.Contact{{ID: "abc123"}})
	f.sync(t)
	if f.surface.len() != 0 {
		t.Errorf("Expected marker removed, got %d", f.surface.len())
	}

	views, err := f.manager.Markers(context.Background())
	if err != nil || len(views) != 0 {
		t.Errorf("Expected no markers, got %v (%v)", views, err)
	}

	wantKinds := []EventKind{EventAdded, EventUpdated, EventAnnounced, EventUpdated, EventRemoved}
	got := f.recorder.kinds()
	if len(got) != len(wantKinds) {
		t.Fatalf("Expected events %v, got %v", wantKinds, got)
	}
	for i := range wantKinds {
		if got[i] != wantKinds[i] {
			t.Errorf("Event %d: expected %s, got %s", i, wantKinds[i], got[i])
		}
	}
}

func TestManagerBatches(t *testing.T) {
	t.Run("Several alerts in one batch announce once", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{
			{ID: "a", Classification: traffic.Alert},
			{ID: "b", Classification: traffic.Alert},
			{ID: "c", Classification: traffic.SituationalAwareness},
		})
		f.sync(t)
		if f.announcer.count() != 1 {
			t.Errorf("Expected 1 announcement, got %d", f.announcer.count())
		}
		if f.surface.len() != 3 {
			t.Errorf("Expected 3 markers, got %d", f.surface.len())
		}
	})

	t.Run("Each alerting batch announces", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "a", Classification: traffic.Alert}})
		f.manager.OnAdd([]traffic.Contact{{ID: "b", Classification: traffic.Alert}})
		f.sync(t)
		if f.announcer.count() != 2 {
			t.Errorf("Expected 2 announcements, got %d", f.announcer.count())
		}
	})

	t.Run("Duplicate add keeps one marker", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "a"}, {ID: "a"}})
		f.sync(t)
		if f.surface.len() != 1 {
			t.Errorf("Expected 1 marker, got %d", f.surface.len())
		}
	})

	t.Run("Unsupported classification is skipped", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "a", Classification: traffic.Classification(7)}, {ID: "b"}})
		f.sync(t)
		if f.surface.len() != 1 {
			t.Errorf("Expected only the valid contact, got %d markers", f.surface.len())
		}
	})

	t.Run("Update and removal of untracked contacts are ignored", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnUpdate([]traffic.Contact{{ID: "ghost", Classification: traffic.Alert}})
		f.manager.OnRemove([]traffic.Contact{{ID: "ghost"}})
		f.sync(t)
		if f.surface.len() != 0 || f.announcer.count() != 0 {
			t.Error("Expected untracked contacts to have no effect")
		}
	})

	t.Run("Unchanged icon is not re-set", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "a", Heading: 10}})
		f.manager.OnUpdate([]traffic.Contact{{ID: "a", Heading: 5, Latitude: 1}})
		f.sync(t)
		if f.surface.iconSets != 0 {
			t.Errorf("Expected no icon change within a sector, got %d", f.surface.iconSets)
		}
	})

	t.Run("Markers are listed in insertion order", func(t *testing.T) {
		f := newManagerFixture(t, Options{})
		f.manager.OnAdd([]traffic.Contact{{ID: "c"}, {ID: "a"}, {ID: "b", Callsign: "N123"}})
		f.sync(t)
		views, err := f.manager.Markers(context.Background())
		if err != nil {
			t.Fatalf("Markers failed: %v", err)
		}
		if len(views) != 3 || views[0].ID != "c" || views[1].ID != "a" || views[2].Label != "N123" {
			t.Errorf("Unexpected markers: %+v", views)
		}
	})
}

func TestManagerAnimation(t *testing.T) {
	t.Run("New fix restarts from displayed position", func(t *testing.T) {
		f := newManagerFixture(t, Options{AnimationDuration: time.Second})
		f.manager.OnAdd([]traffic.Contact{{ID: "a", Latitude: 0, Longitude: 0}})
		f.manager.OnUpdate([]traffic.Contact{{ID: "a", Latitude: 10, Longitude: 0}})
		f.sync(t)

		f.step(t, 500*time.Millisecond) // at 5,0
		f.manager.OnUpdate([]traffic.Contact{{ID: "a", Latitude: 5, Longitude: 10}})
		f.sync(t)

		f.step(t, 500*time.Millisecond)
		want := traffic.LatLng{Latitude: 5, Longitude: 5}
		if got := f.surface.only(t).pos; !closeLatLng(got, want) {
			t.Errorf("Expected %+v, got %+v", want, got)
		}

		views, _ := f.manager.Markers(context.Background())
		if len(views) != 1 || !views[0].Animating {
			t.Errorf("Expected marker still animating, got %+v", views)
		}

		f.step(t, time.Second)
		views, _ = f.manager.Markers(context.Background())
		if views[0].Animating {
			t.Error("Expected animation finished")
		}
	})

	t.Run("Removed marker stops animating", func(t *testing.T) {
		f := newManagerFixture(t, Options{AnimationDuration: time.Second})
		f.manager.OnAdd([]traffic.Contact{{ID: "a"}})
		f.manager.OnUpdate([]traffic.Contact{{ID: "a", Latitude: 1}})
		f.manager.OnRemove([]traffic.Contact{{ID: "a"}})
		f.sync(t)

		f.step(t, 500*time.Millisecond)
		if n := len(f.surface.positions); n != 0 {
			t.Errorf("Expected no position updates, got %d", n)
		}
	})
}

func TestManagerNotices(t *testing.T) {
	var mu sync.Mutex
	var notices []Notice
	f := newManagerFixture(t, Options{
		Ownship: &coordinates.Geographic{Latitude: 40, Longitude: -74},
		Notifier: NotifierFunc(func(n Notice) {
			mu.Lock()
			defer mu.Unlock()
			notices = append(notices, n)
		}),
	})

	f.manager.OnAdd([]traffic.Contact{{ID: "a", Latitude: 40.1, Longitude: -74}})
	f.manager.OnUpdate([]traffic.Contact{{ID: "a", Latitude: 40.1, Longitude: -74}})
	f.manager.OnUpdate([]traffic.Contact{{ID: "a", Latitude: 40.1, Longitude: -74, Classification: traffic.Alert}})
	f.sync(t)

	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 2 {
		t.Fatalf("Expected notices for sighting and escalation, got %d", len(notices))
	}
	if notices[0].Bearing.String() != "N" {
		t.Errorf("Expected contact to the north, got %s", notices[0].Bearing)
	}
	if notices[1].Classification != traffic.Alert {
		t.Errorf("Expected escalation notice, got %s", notices[1].Classification)
	}
}

func closeLatLng(a, b traffic.LatLng) bool {
	const eps = 1e-9
	dLat := a.Latitude - b.Latitude
	dLon := a.Longitude - b.Longitude
	return dLat < eps && dLat > -eps && dLon < eps && dLon > -eps
}
