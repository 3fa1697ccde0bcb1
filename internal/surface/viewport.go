package surface

import (
	"math"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// aspectRatio corrects for terminal cells being about twice as tall as
// they are wide.
const aspectRatio = 0.5

// Viewport maps positions around Center onto a Width x Height character
// grid, north up, with RadiusNM reaching the nearest edge.
type Viewport struct {
	Center   coordinates.Geographic
	RadiusNM float64
	Width    int
	Height   int
}

func (v Viewport) scale() float64 {
	maxY := float64(v.Height/2 - 1)
	maxX := float64(v.Width/2-1) * aspectRatio
	return math.Min(maxX, maxY) / v.RadiusNM
}

// Project converts pos to a grid cell. ok is false when pos is beyond
// RadiusNM or off the grid.
func (v Viewport) Project(pos traffic.LatLng) (x, y int, ok bool) {
	if v.RadiusNM <= 0 || v.Width <= 0 || v.Height <= 0 {
		return 0, 0, false
	}

	p := coordinates.Geographic{Latitude: pos.Latitude, Longitude: pos.Longitude}
	distanceNM := coordinates.DistanceNauticalMiles(v.Center, p)
	if distanceNM > v.RadiusNM {
		return 0, 0, false
	}

	// Bearing 0 = up (negative Y), 90 = right (positive X)
	bearingRad := coordinates.Bearing(v.Center, p) * coordinates.DegreesToRadians
	screenDist := distanceNM * v.scale()

	x = v.Width/2 + int(math.Round(screenDist*math.Sin(bearingRad)/aspectRatio))
	y = v.Height/2 - int(math.Round(screenDist*math.Cos(bearingRad)))
	if x < 0 || x >= v.Width || y < 0 || y >= v.Height {
		return 0, 0, false
	}
	return x, y, true
}

// Blip is a marker projected onto the grid.
type Blip struct {
	X, Y   int
	Marker Placed
}

// Alert reports whether the blip shows alert traffic.
func (b Blip) Alert() bool {
	return b.Marker.Icon.Classification == traffic.Alert
}

// Render draws range rings, the ownship and every visible marker glyph.
// Alert blips are drawn after situational awareness blips so they win
// shared cells.
func (v Viewport) Render(placed []Placed) ([][]rune, []Blip) {
	grid := make([][]rune, v.Height)
	for i := range grid {
		grid[i] = make([]rune, v.Width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}
	if v.Width <= 0 || v.Height <= 0 || v.RadiusNM <= 0 {
		return grid, nil
	}

	cx, cy := v.Width/2, v.Height/2
	maxRadius := v.RadiusNM * v.scale()
	for _, frac := range []float64{1.0 / 3, 2.0 / 3, 1} {
		drawCircle(grid, cx, cy, int(maxRadius*frac), '·')
	}
	setCell(grid, cx, cy, '+')

	var blips []Blip
	for _, alertPass := range []bool{false, true} {
		for _, p := range placed {
			if (p.Icon.Classification == traffic.Alert) != alertPass {
				continue
			}
			x, y, ok := v.Project(p.Position)
			if !ok {
				continue
			}
			grid[y][x] = Glyph(p.Icon)
			blips = append(blips, Blip{X: x, Y: y, Marker: p})
		}
	}
	return grid, blips
}

var arrows = [8]rune{'↑', '↗', '→', '↘', '↓', '↙', '←', '↖'}

// Glyph returns the 8-way arrow closest to the icon's 16-point sector.
// Odd sectors round clockwise.
func Glyph(icon overlay.Icon) rune {
	return arrows[int(math.Round(icon.Sector.Degrees()/45))%len(arrows)]
}

// drawCircle draws a circle using the midpoint algorithm, stretching X by
// the cell aspect ratio so it looks round.
func drawCircle(grid [][]rune, cx, cy, radius int, char rune) {
	if radius <= 0 {
		return
	}
	x, y, err := radius, 0, 0
	for x >= y {
		xs := int(float64(x) / aspectRatio)
		ys := int(float64(y) / aspectRatio)

		setCell(grid, cx+xs, cy+y, char)
		setCell(grid, cx+ys, cy+x, char)
		setCell(grid, cx-ys, cy+x, char)
		setCell(grid, cx-xs, cy+y, char)
		setCell(grid, cx-xs, cy-y, char)
		setCell(grid, cx-ys, cy-x, char)
		setCell(grid, cx+ys, cy-x, char)
		setCell(grid, cx+xs, cy-y, char)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// setCell writes char if the cell is in bounds and blank.
func setCell(grid [][]rune, x, y int, char rune) {
	if y >= 0 && y < len(grid) && x >= 0 && x < len(grid[y]) && grid[y][x] == ' ' {
		grid[y][x] = char
	}
}
