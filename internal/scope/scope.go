// Package scope is a full-screen terminal traffic display built on tview.
//
// The map panel renders a surface.Board around the ownship; the side
// panels list tracked traffic, recent notices and the announcement banner.
package scope

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/internal/surface"
	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

const (
	defaultRedraw = 100 * time.Millisecond
	bannerTime    = 2 * time.Second
	maxNotices    = 50
	minRadiusNM   = 1.0
	maxRadiusNM   = 250.0
)

// MarkerLister returns the overlay's current markers.
type MarkerLister interface {
	Markers(ctx context.Context) ([]overlay.MarkerView, error)
}

// Options configures an App.
type Options struct {
	Board    *surface.Board
	Markers  MarkerLister
	Ownship  coordinates.Geographic
	RadiusNM float64

	// Redraw is the screen refresh period
	Redraw time.Duration
}

// App is the terminal scope.
type App struct {
	opts Options

	tviewApp *tview.Application
	mapView  *MapView
	list     *tview.TextView
	status   *tview.TextView
	notices  *tview.TextView

	mu         sync.Mutex
	radiusNM   float64
	banner     string
	beep       bool
	noticeLog  []string
	lastMarker []overlay.MarkerView
}

// New builds the scope UI.
func New(opts Options) *App {
	if opts.Redraw <= 0 {
		opts.Redraw = defaultRedraw
	}
	if opts.RadiusNM <= 0 {
		opts.RadiusNM = 10
	}

	a := &App{opts: opts, radiusNM: opts.RadiusNM}
	a.tviewApp = tview.NewApplication()
	a.mapView = NewMapView(a)

	a.list = tview.NewTextView().SetDynamicColors(true).SetScrollable(false)
	a.list.SetBorder(true).SetTitle(" Traffic ")

	a.notices = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetMaxLines(maxNotices * 4)
	a.notices.SetBorder(true).SetTitle(" Notices ")

	a.status = tview.NewTextView().SetDynamicColors(true)

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.list, 0, 3, false).
		AddItem(a.notices, 0, 2, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.mapView, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.status, 1, 0, false)

	a.tviewApp.SetRoot(root, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)
	a.tviewApp.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		a.mu.Lock()
		beep := a.beep
		a.beep = false
		a.mu.Unlock()
		if beep {
			screen.Beep()
		}
		return false
	})
	return a
}

// Run shows the scope until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(a.opts.Redraw)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.tviewApp.Stop()
				return
			case <-ticker.C:
				a.refreshMarkers(ctx)
				a.tviewApp.QueueUpdateDraw(a.refresh)
			}
		}
	}()

	if err := a.tviewApp.Run(); err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	return nil
}

// Speak shows text in the status bar and beeps until ctx is cancelled or
// the banner time passes. It is an overlay.SpeakFunc.
func (a *App) Speak(ctx context.Context, text string) error {
	a.mu.Lock()
	a.banner = text
	a.beep = true
	a.mu.Unlock()

	t := time.NewTimer(bannerTime)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}

	a.mu.Lock()
	if a.banner == text {
		a.banner = ""
	}
	a.mu.Unlock()
	return ctx.Err()
}

// Notify implements overlay.Notifier.
func (a *App) Notify(n overlay.Notice) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.noticeLog = append(a.noticeLog, formatNotice(time.Now(), n))
	if len(a.noticeLog) > maxNotices {
		a.noticeLog = a.noticeLog[len(a.noticeLog)-maxNotices:]
	}
}

func (a *App) refreshMarkers(ctx context.Context) {
	if a.opts.Markers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.Redraw)
	defer cancel()

	markers, err := a.opts.Markers.Markers(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Scope could not list markers")
		return
	}
	a.mu.Lock()
	a.lastMarker = markers
	a.mu.Unlock()
}

// refresh runs on the tview goroutine.
func (a *App) refresh() {
	a.mu.Lock()
	markers := a.lastMarker
	banner := a.banner
	radius := a.radiusNM
	notices := strings.Join(a.noticeLog, "\n")
	a.mu.Unlock()

	a.list.SetText(trafficText(a.opts.Ownship, markers))
	a.notices.SetText(notices)
	a.notices.ScrollToEnd()
	a.status.SetText(statusText(banner, radius, len(markers)))
}

func (a *App) viewport(width, height int) surface.Viewport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return surface.Viewport{Center: a.opts.Ownship, RadiusNM: a.radiusNM, Width: width, Height: height}
}

func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	switch {
	case event.Key() == tcell.KeyEscape || event.Rune() == 'q':
		a.tviewApp.Stop()
		return nil
	case event.Rune() == '+' || event.Rune() == '=':
		a.zoom(0.5)
		return nil
	case event.Rune() == '-':
		a.zoom(2)
		return nil
	}
	return event
}

func (a *App) zoom(factor float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.radiusNM * factor
	if r < minRadiusNM {
		r = minRadiusNM
	}
	if r > maxRadiusNM {
		r = maxRadiusNM
	}
	a.radiusNM = r
}

func trafficText(ownship coordinates.Geographic, markers []overlay.MarkerView) string {
	if len(markers) == 0 {
		return "[gray]No traffic[-]"
	}
	var b strings.Builder
	for _, m := range markers {
		pos := coordinates.Geographic{Latitude: m.Position.Latitude, Longitude: m.Position.Longitude}
		dist := coordinates.DistanceNauticalMiles(ownship, pos)
		relAlt := (m.AltitudeFt - ownship.AltitudeFt) / 100

		color := "green"
		if m.Classification == traffic.Alert {
			color = "red"
		}
		fmt.Fprintf(&b, "[%s]%-8s[-] %5.1fnm %+04.0f %3.0f° %3.0fkt\n",
			color, m.Label, dist, relAlt, m.Heading, m.GroundSpeedKt)
	}
	return b.String()
}

func statusText(banner string, radiusNM float64, n int) string {
	s := fmt.Sprintf(" [gray]Range[-] %.0f nm  [gray]Targets[-] %d  [gray]q[-] quit  [gray]+/-[-] zoom", radiusNM, n)
	if banner != "" {
		s = fmt.Sprintf("[black:red] %s [-:-]", strings.ToUpper(banner)) + s
	}
	return s
}

func formatNotice(at time.Time, n overlay.Notice) string {
	color := "green"
	if n.Classification == traffic.Alert {
		color = "red"
	}
	return fmt.Sprintf("[gray]%s[-] [%s]%s[-]", at.Format("15:04:05"), color, strings.ReplaceAll(n.String(), "\n", " | "))
}
