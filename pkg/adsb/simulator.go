package adsb

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
)

// Simulator is a DataSource that flies a fixed set of targets around a
// centre point. Even-numbered targets orbit the centre; odd-numbered
// targets cross it on straight legs, so they close in to alert range and
// then fly away again. Positions depend only on the time since creation.
type Simulator struct {
	center  coordinates.Geographic
	targets int
	start   time.Time
	now     func() time.Time
}

// crossingLegNM is the distance at which crossing targets start and end.
const crossingLegNM = 20.0

// NewSimulator creates a simulator with n targets around center.
func NewSimulator(center coordinates.Geographic, n int) *Simulator {
	now := time.Now
	return &Simulator{center: center, targets: n, start: now(), now: now}
}

// GetAircraft returns the simulated targets within radiusNM of the given
// point.
func (s *Simulator) GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	elapsed := now.Sub(s.start).Seconds()
	query := coordinates.Geographic{Latitude: centerLat, Longitude: centerLon}

	aircraft := make([]Aircraft, 0, s.targets)
	for i := 0; i < s.targets; i++ {
		ac := s.target(i, elapsed)
		ac.LastSeen = now
		pos := coordinates.Geographic{Latitude: ac.Latitude, Longitude: ac.Longitude}
		if coordinates.DistanceNauticalMiles(query, pos) <= radiusNM {
			aircraft = append(aircraft, ac)
		}
	}
	return aircraft, nil
}

// Close is a no-op.
func (s *Simulator) Close() error {
	return nil
}

func (s *Simulator) target(i int, elapsed float64) Aircraft {
	ac := Aircraft{
		ICAO:        fmt.Sprintf("f%05x", i+1),
		Callsign:    fmt.Sprintf("SIM%d", i+1),
		Altitude:    s.center.AltitudeFt + float64(i%4)*800 - 800,
		GroundSpeed: 90 + float64(i%5)*30,
	}

	// Spread initial bearings around the compass
	bearing := math.Mod(float64(i)*137.5, 360)

	if i%2 == 0 {
		// Clockwise orbit; angular rate is groundspeed over circumference
		radius := 2.0 + float64(i)
		circumference := 2 * math.Pi * radius
		deg := ac.GroundSpeed * elapsed / 3600 / circumference * 360
		theta := coordinates.NormalizeHeading(bearing + deg)

		pos := coordinates.Destination(s.center, theta, radius)
		ac.Latitude, ac.Longitude = pos.Latitude, pos.Longitude
		ac.Track = coordinates.NormalizeHeading(theta + 90)
		return ac
	}

	// Straight leg through the centre, restarting at the far end
	legSeconds := 2 * crossingLegNM / ac.GroundSpeed * 3600
	t := math.Mod(elapsed, legSeconds)
	start := coordinates.Destination(s.center, bearing, crossingLegNM)
	track := coordinates.NormalizeHeading(bearing + 180)

	pos := coordinates.DeadReckon(start, ac.GroundSpeed, track, t)
	ac.Latitude, ac.Longitude = pos.Latitude, pos.Longitude
	ac.Track = track
	return ac
}
