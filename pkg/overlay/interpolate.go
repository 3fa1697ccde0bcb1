package overlay

import (
	"math"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// DefaultAnimationDuration is how long a marker takes to glide to a new fix.
const DefaultAnimationDuration = 1000 * time.Millisecond

// Interpolate returns the position a fraction f of the way from one fix to
// the next, interpolating latitude and longitude independently. f is clamped
// to [0, 1] so a late or early tick never extrapolates past either fix; at
// the endpoints the inputs are returned exactly.
func Interpolate(from, to traffic.LatLng, f float64) traffic.LatLng {
	if f <= 0 || math.IsNaN(f) {
		return from
	}
	if f >= 1 {
		return to
	}
	return traffic.LatLng{
		Latitude:  from.Latitude + (to.Latitude-from.Latitude)*f,
		Longitude: from.Longitude + (to.Longitude-from.Longitude)*f,
	}
}

// Fraction is the linear time curve: elapsed/duration clamped to [0, 1].
// A non-positive duration completes immediately.
func Fraction(elapsed, duration time.Duration) float64 {
	if duration <= 0 || elapsed >= duration {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(duration)
}

// animation moves one marker between two fixes.
type animation struct {
	from  traffic.LatLng
	to    traffic.LatLng
	start time.Time
}

// at returns the interpolated position at now and whether the animation has
// reached its end fix.
func (a animation) at(now time.Time, duration time.Duration) (traffic.LatLng, bool) {
	f := Fraction(now.Sub(a.start), duration)
	return Interpolate(a.from, a.to, f), f >= 1
}
