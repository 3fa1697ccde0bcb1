package scope

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MapView is a tview primitive that draws the board around the ownship.
type MapView struct {
	*tview.Box
	app *App
}

// NewMapView creates the map panel.
func NewMapView(app *App) *MapView {
	mv := &MapView{Box: tview.NewBox(), app: app}
	mv.SetBorder(true).SetTitle(" Scope ")
	return mv
}

// Draw renders the map using tcell.
func (mv *MapView) Draw(screen tcell.Screen) {
	mv.Box.DrawForSubclass(screen, mv)
	x, y, width, height := mv.GetInnerRect()

	vp := mv.app.viewport(width, height)
	grid, blips := vp.Render(mv.app.opts.Board.Placed())

	gridStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for row := range grid {
		for col, ch := range grid[row] {
			if ch != ' ' {
				screen.SetContent(x+col, y+row, ch, nil, gridStyle)
			}
		}
	}

	ownStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	screen.SetContent(x+width/2, y+height/2, '+', nil, ownStyle)

	saStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	alertStyle := tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	for _, b := range blips {
		style := saStyle
		if b.Alert() {
			style = alertStyle
		}
		screen.SetContent(x+b.X, y+b.Y, grid[b.Y][b.X], nil, style)
	}

	label := fmt.Sprintf(" %.0f nm ", vp.RadiusNM)
	for i, ch := range label {
		screen.SetContent(x+i, y+height-1, ch, nil, gridStyle)
	}
}
