// Package adsb turns ADS-B position reports into traffic for the overlay.
//
// A DataSource reports the aircraft around a point (airplanes.live or the
// built-in Simulator). A Feed polls a DataSource, classifies each aircraft
// against the ownship and pushes added/updated/removed batches to a
// traffic.Listener.
package adsb

import (
	"context"
	"strings"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// Aircraft represents an aircraft tracked via ADS-B.
// All position data is in WGS84 coordinate system.
type Aircraft struct {
	// ICAO is the unique 24-bit ICAO aircraft address (e.g., "A12345")
	ICAO string

	// Callsign is the flight number or aircraft registration
	Callsign string

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Altitude in feet above mean sea level (MSL)
	// Note: Some aircraft report geometric altitude, others barometric
	Altitude float64

	// GroundSpeed in knots
	GroundSpeed float64

	// Track is the ground track (heading) in degrees (0-359)
	// 0 = North, 90 = East, 180 = South, 270 = West
	Track float64

	// VerticalRate in feet per minute (positive = climbing, negative = descending)
	VerticalRate float64

	// LastSeen is the timestamp of the last position update
	LastSeen time.Time
}

// Contact converts the aircraft to a traffic contact with the given
// classification. The ICAO address is the contact identity.
func (a Aircraft) Contact(c traffic.Classification) traffic.Contact {
	return traffic.Contact{
		ID:             strings.ToLower(a.ICAO),
		Callsign:       strings.TrimSpace(a.Callsign),
		Latitude:       a.Latitude,
		Longitude:      a.Longitude,
		AltitudeFt:     a.Altitude,
		Heading:        a.Track,
		GroundSpeedKt:  a.GroundSpeed,
		Classification: c,
		Observed:       a.LastSeen,
	}
}

// DataSource is the interface that all ADS-B data providers must implement.
// This abstraction allows switching between online services and the
// simulator.
type DataSource interface {
	// GetAircraft returns all currently tracked aircraft within a given radius.
	// centerLat/centerLon define the search center in decimal degrees.
	// radiusNM is the search radius in nautical miles.
	GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}
