package overlay

import (
	"fmt"
	"math"
	"strings"

	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// Sector is one of the 16 compass points, 0 = N, increasing clockwise in
// 22.5 degree steps.
type Sector int

// NumSectors is the number of compass sectors.
const NumSectors = 16

// SectorWidth is the angular width of a sector in degrees.
const SectorWidth = 360.0 / NumSectors

var sectorNames = [NumSectors]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func (s Sector) String() string {
	if s < 0 || s >= NumSectors {
		return fmt.Sprintf("Sector(%d)", int(s))
	}
	return sectorNames[s]
}

// Degrees returns the centre heading of the sector.
func (s Sector) Degrees() float64 {
	return float64(s) * SectorWidth
}

// SectorFor maps a heading in degrees to its compass sector using
// round(heading / 22.5) mod 16. Headings outside [0, 360) are normalised
// first, so SectorFor(h) == SectorFor(h+360) for every h.
func SectorFor(heading float64) Sector {
	h := math.Mod(heading, 360)
	if h < 0 {
		h += 360
	}
	return Sector(int(math.Floor(h/SectorWidth+0.5)) % NumSectors)
}

// Icon identifies one of the 32 directional traffic icons.
type Icon struct {
	Sector         Sector
	Classification traffic.Classification
}

// ID returns the resource name of the icon, e.g. "traffic_marker_icon_nne"
// for alert traffic and "sa_traffic_marker_icon_nne" for situational
// awareness traffic.
func (i Icon) ID() string {
	prefix := "traffic_marker_icon_"
	if i.Classification == traffic.SituationalAwareness {
		prefix = "sa_" + prefix
	}
	return prefix + strings.ToLower(i.Sector.String())
}

func (i Icon) String() string { return i.ID() }

// SelectIcon picks the icon for a heading and classification.
func SelectIcon(heading float64, c traffic.Classification) (Icon, error) {
	if err := c.Validate(); err != nil {
		return Icon{}, err
	}
	return Icon{Sector: SectorFor(heading), Classification: c}, nil
}

// IconFor is SelectIcon applied to a contact.
func IconFor(c traffic.Contact) (Icon, error) {
	return SelectIcon(c.Heading, c.Classification)
}

// AllIcons returns every icon variant, situational awareness first.
func AllIcons() []Icon {
	icons := make([]Icon, 0, 2*NumSectors)
	for _, c := range []traffic.Classification{traffic.SituationalAwareness, traffic.Alert} {
		for s := Sector(0); s < NumSectors; s++ {
			icons = append(icons, Icon{Sector: s, Classification: c})
		}
	}
	return icons
}
