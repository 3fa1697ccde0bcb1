package overlay

import (
	"errors"
	"fmt"

	"github.com/iancoleman/orderedmap"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

var (
	// ErrDuplicateIdentity means a marker already exists for the identity.
	ErrDuplicateIdentity = errors.New("duplicate contact identity")

	// ErrUnknownIdentity means no marker exists for the identity.
	ErrUnknownIdentity = errors.New("unknown contact identity")
)

// Marker is the on-map representation of one contact.
type Marker struct {
	// Contact is the latest observation for this identity
	Contact traffic.Contact

	// Handle is the map surface's handle for the rendered icon
	Handle Handle

	// Icon is the icon currently shown
	Icon Icon

	// Position is the currently displayed (possibly interpolated) position
	Position traffic.LatLng
}

// Registry holds at most one Marker per contact identity. Lookups are O(1);
// iteration follows insertion order. A Registry is not safe for concurrent
// use; the Manager owns it from a single goroutine.
type Registry struct {
	markers *orderedmap.OrderedMap
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{markers: orderedmap.New()}
}

// Add creates a marker for a contact whose identity is not yet tracked.
func (r *Registry) Add(c traffic.Contact) (*Marker, error) {
	if _, ok := r.markers.Get(c.ID); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, c.ID)
	}
	m := &Marker{Contact: c, Position: c.Position()}
	r.markers.Set(c.ID, m)
	return m, nil
}

// Find returns the marker for id, if any.
func (r *Registry) Find(id string) (*Marker, bool) {
	v, ok := r.markers.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Marker), true
}

// Update stores c as the latest observation for its identity and returns
// the marker with the contact it replaced. An untracked identity returns an
// error wrapping ErrUnknownIdentity.
func (r *Registry) Update(c traffic.Contact) (*Marker, traffic.Contact, error) {
	m, ok := r.Find(c.ID)
	if !ok {
		return nil, traffic.Contact{}, fmt.Errorf("%w: %s", ErrUnknownIdentity, c.ID)
	}
	prev := m.Contact
	m.Contact = c
	return m, prev, nil
}

// Remove deletes and returns the marker for id. Removing an unknown identity
// is a no-op.
func (r *Registry) Remove(id string) (*Marker, bool) {
	m, ok := r.Find(id)
	if !ok {
		return nil, false
	}
	r.markers.Delete(id)
	return m, true
}

// Len returns the number of tracked markers.
func (r *Registry) Len() int {
	return len(r.markers.Keys())
}

// Markers returns all markers in insertion order.
func (r *Registry) Markers() []*Marker {
	keys := r.markers.Keys()
	out := make([]*Marker, 0, len(keys))
	for _, k := range keys {
		if m, ok := r.Find(k); ok {
			out = append(out, m)
		}
	}
	return out
}

// Clear removes every marker and returns them in insertion order.
func (r *Registry) Clear() []*Marker {
	out := r.Markers()
	r.markers = orderedmap.New()
	return out
}
