// Package surface provides map surfaces for the overlay: an in-memory Board
// that terminal and web front ends render from, and the projection helpers
// that turn marker positions into character cells.
package surface

import (
	"sort"
	"sync"

	"github.com/unklstewy/traffic-overlay/pkg/overlay"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

// OpKind names a change to a Board.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpRemove OpKind = "remove"
	OpIcon   OpKind = "icon"
	OpMove   OpKind = "move"
)

// Op is one change applied to a Board. Seq increases by one with every
// change, so a client holding a snapshot at version v applies only ops
// with Seq > v. Replaying an op it already has is then harmless.
type Op struct {
	Seq      uint64         `json:"seq"`
	Kind     OpKind         `json:"op"`
	Handle   overlay.Handle `json:"handle"`
	Position traffic.LatLng `json:"position"`
	Icon     string         `json:"icon,omitempty"`
}

// Placed is a marker as drawn on the board.
type Placed struct {
	Handle   overlay.Handle `json:"handle"`
	Position traffic.LatLng `json:"position"`
	Icon     overlay.Icon   `json:"-"`
	IconID   string         `json:"icon"`
}

// Board is a goroutine-safe overlay.MapSurface that keeps markers in
// memory. The overlay writes to it from its loop while renderers read
// snapshots from theirs.
type Board struct {
	mu      sync.RWMutex
	next    overlay.Handle
	seq     uint64
	markers map[overlay.Handle]Placed
	hooks   []func(Op)
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{markers: make(map[overlay.Handle]Placed)}
}

// OnChange registers fn to be called after every change. Hooks run on the
// writer's goroutine and must not block.
func (b *Board) OnChange(fn func(Op)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// AddMarker implements overlay.MapSurface.
func (b *Board) AddMarker(pos traffic.LatLng, icon overlay.Icon) overlay.Handle {
	b.mu.Lock()
	b.next++
	h := b.next
	b.markers[h] = Placed{Handle: h, Position: pos, Icon: icon, IconID: icon.ID()}
	b.seq++
	op := Op{Seq: b.seq, Kind: OpAdd, Handle: h, Position: pos, Icon: icon.ID()}
	hooks := b.hooks
	b.mu.Unlock()

	emit(hooks, op)
	return h
}

// RemoveMarker implements overlay.MapSurface.
func (b *Board) RemoveMarker(h overlay.Handle) {
	b.mu.Lock()
	p, ok := b.markers[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.markers, h)
	b.seq++
	op := Op{Seq: b.seq, Kind: OpRemove, Handle: h, Position: p.Position}
	hooks := b.hooks
	b.mu.Unlock()

	emit(hooks, op)
}

// SetMarkerIcon implements overlay.MapSurface.
func (b *Board) SetMarkerIcon(h overlay.Handle, icon overlay.Icon) {
	b.mu.Lock()
	p, ok := b.markers[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	p.Icon, p.IconID = icon, icon.ID()
	b.markers[h] = p
	b.seq++
	op := Op{Seq: b.seq, Kind: OpIcon, Handle: h, Position: p.Position, Icon: p.IconID}
	hooks := b.hooks
	b.mu.Unlock()

	emit(hooks, op)
}

// SetMarkerPosition implements overlay.MapSurface.
func (b *Board) SetMarkerPosition(h overlay.Handle, pos traffic.LatLng) {
	b.mu.Lock()
	p, ok := b.markers[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	p.Position = pos
	b.markers[h] = p
	b.seq++
	op := Op{Seq: b.seq, Kind: OpMove, Handle: h, Position: pos, Icon: p.IconID}
	hooks := b.hooks
	b.mu.Unlock()

	emit(hooks, op)
}

// Placed returns a snapshot of all markers ordered by handle.
func (b *Board) Placed() []Placed {
	out, _ := b.Snapshot()
	return out
}

// Snapshot returns all markers ordered by handle together with the Seq of
// the last change they include.
func (b *Board) Snapshot() ([]Placed, uint64) {
	b.mu.RLock()
	out := make([]Placed, 0, len(b.markers))
	for _, p := range b.markers {
		out = append(out, p)
	}
	version := b.seq
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, version
}

// Len returns the number of markers on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.markers)
}

func emit(hooks []func(Op), op Op) {
	for _, fn := range hooks {
		fn(op)
	}
}
