// Package radar is a lightweight bubbletea traffic display. It draws the
// same surface.Board as the scope but runs inline in any terminal.
package radar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/traffic-overlay/internal/surface"
	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

const (
	defaultInterval = 250 * time.Millisecond
	bannerTime      = 2 * time.Second
	noticeLines     = 4
	chromeLines     = 3 + noticeLines
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Background(lipgloss.Color("235"))
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196"))
	ringStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	ownStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	saStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Options configures a Radar.
type Options struct {
	Board    *surface.Board
	Ownship  coordinates.Geographic
	RadiusNM float64
	Interval time.Duration
}

// Radar runs the bubbletea program.
type Radar struct {
	program *tea.Program
	inbox   *inbox
}

// inbox holds notices until the next tick picks them up.
type inbox struct {
	mu      sync.Mutex
	notices []string
}

func (b *inbox) push(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, s)
}

func (b *inbox) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	return out
}

// New creates a radar. Call Run to show it.
func New(opts Options) *Radar {
	r := &Radar{inbox: &inbox{}}
	r.program = tea.NewProgram(newModel(opts, r.inbox), tea.WithAltScreen())
	return r
}

// Run shows the radar until ctx is cancelled or the user quits.
func (r *Radar) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.program.Quit()
	}()
	if _, err := r.program.Run(); err != nil {
		return fmt.Errorf("radar: %w", err)
	}
	return nil
}

// Speak shows text as a banner until ctx is cancelled or the banner time
// passes. It is an overlay.SpeakFunc.
func (r *Radar) Speak(ctx context.Context, text string) error {
	r.program.Send(announceMsg(text))
	t := time.NewTimer(bannerTime)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	r.program.Send(clearMsg(text))
	return ctx.Err()
}

// Notify implements overlay.Notifier.
func (r *Radar) Notify(n overlay.Notice) {
	r.inbox.push(formatNotice(n))
}

type tickMsg time.Time

type announceMsg string

type clearMsg string

type model struct {
	board    *surface.Board
	inbox    *inbox
	ownship  coordinates.Geographic
	radiusNM float64
	interval time.Duration

	width, height int
	banner        string
	notices       []string
}

func newModel(opts Options, in *inbox) model {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RadiusNM <= 0 {
		opts.RadiusNM = 10
	}
	return model{
		board:    opts.Board,
		inbox:    in,
		ownship:  opts.Ownship,
		radiusNM: opts.RadiusNM,
		interval: opts.Interval,
		width:    80,
		height:   24,
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "+", "=":
			m.radiusNM = clampRadius(m.radiusNM / 2)
		case "-":
			m.radiusNM = clampRadius(m.radiusNM * 2)
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		m.notices = append(m.notices, m.inbox.drain()...)
		if len(m.notices) > noticeLines {
			m.notices = m.notices[len(m.notices)-noticeLines:]
		}
		return m, m.tick()
	case announceMsg:
		m.banner = string(msg)
	case clearMsg:
		if m.banner == string(msg) {
			m.banner = ""
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := titleStyle.Render(fmt.Sprintf(" TRAFFIC  %.0f nm ", m.radiusNM))
	if m.banner != "" {
		title += " " + bannerStyle.Render(" "+strings.ToUpper(m.banner)+" ")
	}
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(m.renderRadar())

	for i := 0; i < noticeLines; i++ {
		if i < len(m.notices) {
			b.WriteString(m.notices[i])
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q quit  +/- zoom"))
	return b.String()
}

func (m model) renderRadar() string {
	height := m.height - chromeLines
	if height < 5 {
		height = 5
	}
	vp := surface.Viewport{Center: m.ownship, RadiusNM: m.radiusNM, Width: m.width, Height: height}

	var placed []surface.Placed
	if m.board != nil {
		placed = m.board.Placed()
	}
	grid, blips := vp.Render(placed)

	alerts := make(map[[2]int]bool, len(blips))
	for _, bl := range blips {
		alerts[[2]int{bl.X, bl.Y}] = bl.Alert()
	}

	var b strings.Builder
	for y, row := range grid {
		for x, ch := range row {
			alert, isBlip := alerts[[2]int{x, y}]
			switch {
			case isBlip && alert:
				b.WriteString(alertStyle.Render(string(ch)))
			case isBlip:
				b.WriteString(saStyle.Render(string(ch)))
			case ch == '+':
				b.WriteString(ownStyle.Render(string(ch)))
			case ch == '·':
				b.WriteString(ringStyle.Render(string(ch)))
			default:
				b.WriteRune(ch)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func clampRadius(r float64) float64 {
	switch {
	case r < 1:
		return 1
	case r > 250:
		return 250
	}
	return r
}

func formatNotice(n overlay.Notice) string {
	line := strings.ReplaceAll(n.String(), "\n", "  ")
	if n.Classification == traffic.Alert {
		return alertStyle.Render(line)
	}
	return saStyle.Render(line)
}
