package overlay

import (
	"fmt"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// Notice describes a contact relative to the ownship. It is produced for
// newly sighted traffic and for traffic that escalates to alert.
type Notice struct {
	ID             string
	Label          string
	Classification traffic.Classification

	// DistanceMiles is the distance from the ownship in statute miles
	DistanceMiles float64

	// Bearing is the 16-point compass direction from ownship to contact
	Bearing Sector

	// Heading is the 16-point compass direction the contact is tracking
	Heading Sector

	// TimeToReach is distance divided by ground speed; zero when the
	// contact is not moving
	TimeToReach time.Duration
}

// Notifier receives notices. Notify must not block.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NewNotice describes c as seen from ownship.
func NewNotice(ownship coordinates.Geographic, c traffic.Contact) Notice {
	pos := coordinates.Geographic{Latitude: c.Latitude, Longitude: c.Longitude, AltitudeFt: c.AltitudeFt}
	miles := coordinates.NauticalToStatuteMiles(coordinates.DistanceNauticalMiles(ownship, pos))

	n := Notice{
		ID:             c.ID,
		Label:          c.Label(),
		Classification: c.Classification,
		DistanceMiles:  miles,
		Bearing:        SectorFor(coordinates.Bearing(ownship, pos)),
		Heading:        SectorFor(c.Heading),
	}
	if mph := coordinates.KnotsToMPH(c.GroundSpeedKt); mph > 0 {
		n.TimeToReach = time.Duration(miles / mph * float64(time.Hour))
	}
	return n
}

// String renders the notice as three lines: label, distance and bearing
// from ownship, time to reach.
func (n Notice) String() string {
	total := int(n.TimeToReach / time.Second)
	return fmt.Sprintf("%s\n%.1f mi %s\n%d min %02d sec",
		n.Label, n.DistanceMiles, n.Bearing, total/60, total%60)
}
