package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

type recordingAnnouncer struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingAnnouncer) Announce(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingAnnouncer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestAnnunciatorAddedBatch(t *testing.T) {
	t.Run("Alert contact announces once per batch", func(t *testing.T) {
		rec := &recordingAnnouncer{}
		a := NewAnnunciator(rec, "")

		a.ObserveAdded(traffic.Contact{ID: "a", Classification: traffic.Alert})
		a.ObserveAdded(traffic.Contact{ID: "b", Classification: traffic.Alert})
		if !a.Flush() {
			t.Error("Expected announcement")
		}
		if rec.count() != 1 || rec.texts[0] != DefaultAnnouncementText {
			t.Errorf("Expected exactly one %q announcement, got %v", DefaultAnnouncementText, rec.texts)
		}

		// Flag resets after flush
		if a.Flush() {
			t.Error("Expected no announcement on empty batch")
		}
		if rec.count() != 1 {
			t.Errorf("Expected 1 announcement, got %d", rec.count())
		}
	})

	t.Run("Situational awareness contact is silent", func(t *testing.T) {
		rec := &recordingAnnouncer{}
		a := NewAnnunciator(rec, "Traffic, traffic")

		a.ObserveAdded(traffic.Contact{ID: "a", Classification: traffic.SituationalAwareness})
		if a.pending {
			t.Error("Expected nothing pending")
		}
		if a.Flush() || rec.count() != 0 {
			t.Errorf("Expected no announcement, got %v", rec.texts)
		}
		if a.Text() != "Traffic, traffic" {
			t.Errorf("Expected custom text, got %q", a.Text())
		}
	})
}

func TestAnnunciatorUpdatedBatch(t *testing.T) {
	sa := traffic.Contact{ID: "a", Heading: 10, Classification: traffic.SituationalAwareness}
	alert := sa
	alert.Classification = traffic.Alert

	tests := []struct {
		name     string
		prev     traffic.Contact
		next     traffic.Contact
		announce bool
	}{
		{"Escalation", sa, alert, true},
		{"Heading only", sa, traffic.Contact{ID: "a", Heading: 200}, false},
		{"Remains alert", alert, alert, false},
		{"De-escalation", alert, sa, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingAnnouncer{}
			a := NewAnnunciator(rec, "")
			a.ObserveUpdated(tt.prev, tt.next)
			if got := a.Flush(); got != tt.announce {
				t.Errorf("Expected announce=%v, got %v", tt.announce, got)
			}
		})
	}
}

func TestAnnunciatorNilAnnouncer(t *testing.T) {
	a := NewAnnunciator(nil, "")
	a.ObserveAdded(traffic.Contact{Classification: traffic.Alert})
	if !a.Flush() {
		t.Error("Expected Flush to report the decision without an announcer")
	}
}

func TestPreemptingAnnouncer(t *testing.T) {
	var mu sync.Mutex
	var events []string
	started := make(chan string, 4)

	speak := func(ctx context.Context, text string) error {
		mu.Lock()
		events = append(events, "start "+text)
		mu.Unlock()
		started <- text

		<-ctx.Done()

		mu.Lock()
		events = append(events, "stop "+text)
		mu.Unlock()
		return ctx.Err()
	}

	p := NewPreemptingAnnouncer(speak)

	p.Announce("one")
	waitStarted(t, started, "one")

	p.Announce("two")
	waitStarted(t, started, "two")

	p.Close()

	want := []string{"start one", "stop one", "start two", "stop two"}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Event %d: expected %q, got %q", i, want[i], events[i])
		}
	}

	// Ignored after Close
	p.Announce("three")
	select {
	case text := <-started:
		t.Errorf("Expected no announcement after Close, got %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPreemptingAnnouncerFlushesQueue(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var spoken []string

	p := NewPreemptingAnnouncer(func(ctx context.Context, text string) error {
		select {
		case <-release:
			if ctx.Err() != nil {
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		mu.Lock()
		spoken = append(spoken, text)
		mu.Unlock()
		return nil
	})

	// Only the last of a burst survives
	p.Announce("a")
	p.Announce("b")
	p.Announce("c")
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(spoken)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(spoken) != 1 || spoken[0] != "c" {
		t.Errorf("Expected only c to be spoken, got %v", spoken)
	}
}

func waitStarted(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("Expected %q to start, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %q", want)
	}
}
