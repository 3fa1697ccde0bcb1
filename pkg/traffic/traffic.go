// Package traffic defines the contact model shared by traffic sources and
// the overlay that renders them.
package traffic

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedClassification is returned for classification values outside
// the two known severities.
var ErrUnsupportedClassification = errors.New("unsupported traffic classification")

// Classification is the severity tag of a contact.
type Classification int

const (
	// SituationalAwareness is background traffic that needs no action.
	SituationalAwareness Classification = iota

	// Alert is actionable traffic close to the ownship.
	Alert
)

func (c Classification) String() string {
	switch c {
	case SituationalAwareness:
		return "situational-awareness"
	case Alert:
		return "alert"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// Validate returns an error wrapping ErrUnsupportedClassification if c is
// not one of the known classifications.
func (c Classification) Validate() error {
	if c != SituationalAwareness && c != Alert {
		return fmt.Errorf("%w: %d", ErrUnsupportedClassification, int(c))
	}
	return nil
}

// LatLng is a map position in decimal degrees (WGS84).
type LatLng struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Contact is a single traffic observation. Contacts are values: an updated
// observation of the same aircraft is a new Contact with the same ID.
type Contact struct {
	// ID is the stable identity of the aircraft (ICAO 24-bit address)
	ID string `json:"id"`

	// Callsign is the flight number or registration, may be empty
	Callsign string `json:"callsign,omitempty"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"lon"`

	// AltitudeFt is altitude in feet MSL
	AltitudeFt float64 `json:"alt_ft"`

	// Heading is the true track in degrees (0-359.9, 0 = North)
	Heading float64 `json:"heading"`

	// GroundSpeedKt is ground speed in knots
	GroundSpeedKt float64 `json:"gs_kt"`

	// Classification is the severity assigned by the source
	Classification Classification `json:"classification"`

	// Observed is when the source produced this observation
	Observed time.Time `json:"observed"`
}

// Position returns the contact's map position.
func (c Contact) Position() LatLng {
	return LatLng{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Label returns the callsign, or the ID when no callsign is known.
func (c Contact) Label() string {
	if c.Callsign != "" {
		return c.Callsign
	}
	return c.ID
}

// Listener receives batches of contacts pushed by a Source. Implementations
// must not assume which goroutine calls them.
type Listener interface {
	OnAdd(added []Contact)
	OnUpdate(updated []Contact)
	OnRemove(removed []Contact)
}

// Source pushes traffic batches to a single listener while enabled.
type Source interface {
	// Enable registers the listener and starts delivering batches.
	Enable(l Listener) error

	// Disable stops delivery. No listener calls happen after it returns.
	Disable() error
}
