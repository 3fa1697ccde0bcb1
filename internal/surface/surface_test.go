package surface

import (
	"sync"
	"testing"

	"github.com/unklstewy/traffic-overlay/pkg/coordinates"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
	"github.com/unklstewy/traffic-overlay/pkg/traffic"
)

var _ overlay.MapSurface = (*Board)(nil)

func TestBoard(t *testing.T) {
	b := NewBoard()

	var mu sync.Mutex
	var ops []Op
	b.OnChange(func(op Op) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, op)
	})

	north := overlay.Icon{Sector: 0, Classification: traffic.SituationalAwareness}
	east := overlay.Icon{Sector: 4, Classification: traffic.Alert}

	h1 := b.AddMarker(traffic.LatLng{Latitude: 1}, north)
	h2 := b.AddMarker(traffic.LatLng{Latitude: 2}, north)
	if h1 == h2 {
		t.Fatal("Expected distinct handles")
	}

	b.SetMarkerIcon(h2, east)
	b.SetMarkerPosition(h2, traffic.LatLng{Latitude: 3})
	b.RemoveMarker(h1)
	b.RemoveMarker(h1) // already gone, no op

	placed := b.Placed()
	if b.Len() != 1 || len(placed) != 1 {
		t.Fatalf("Expected 1 marker, got %d", b.Len())
	}
	if placed[0].Handle != h2 || placed[0].IconID != "traffic_marker_icon_e" || placed[0].Position.Latitude != 3 {
		t.Errorf("Unexpected marker %+v", placed[0])
	}

	wantKinds := []OpKind{OpAdd, OpAdd, OpIcon, OpMove, OpRemove}
	if len(ops) != len(wantKinds) {
		t.Fatalf("Expected ops %v, got %+v", wantKinds, ops)
	}
	for i, k := range wantKinds {
		if ops[i].Kind != k {
			t.Errorf("Op %d: expected %s, got %s", i, k, ops[i].Kind)
		}
	}
}

func TestBoardSnapshotVersion(t *testing.T) {
	b := NewBoard()

	var ops []Op
	b.OnChange(func(op Op) { ops = append(ops, op) })

	if _, v := b.Snapshot(); v != 0 {
		t.Fatalf("Expected empty board at version 0, got %d", v)
	}

	h := b.AddMarker(traffic.LatLng{Latitude: 1}, overlay.Icon{})
	b.SetMarkerPosition(h, traffic.LatLng{Latitude: 2})
	b.RemoveMarker(h)
	b.RemoveMarker(h) // no change, no seq
	b.SetMarkerIcon(h, overlay.Icon{Sector: 4})
	b.SetMarkerPosition(h, traffic.LatLng{Latitude: 3})

	for i, op := range ops {
		if op.Seq != uint64(i+1) {
			t.Errorf("Op %d: expected seq %d, got %d", i, i+1, op.Seq)
		}
	}

	_, v := b.Snapshot()
	if len(ops) != 3 || v != ops[len(ops)-1].Seq {
		t.Errorf("Expected snapshot version to match last op, got %d after %+v", v, ops)
	}

	t.Run("Ops raced with a snapshot are stale", func(t *testing.T) {
		b.AddMarker(traffic.LatLng{Latitude: 5}, overlay.Icon{})
		placed, version := b.Snapshot()
		last := ops[len(ops)-1]
		if len(placed) != 1 || last.Seq > version {
			t.Errorf("Expected snapshot to include op %d, version %d", last.Seq, version)
		}
	})
}

func TestBoardPlacedOrder(t *testing.T) {
	b := NewBoard()
	for i := 0; i < 20; i++ {
		b.AddMarker(traffic.LatLng{}, overlay.Icon{})
	}
	placed := b.Placed()
	for i := 1; i < len(placed); i++ {
		if placed[i-1].Handle >= placed[i].Handle {
			t.Fatalf("Expected ascending handles, got %d then %d", placed[i-1].Handle, placed[i].Handle)
		}
	}
}

func TestViewportProject(t *testing.T) {
	center := coordinates.Geographic{Latitude: 40, Longitude: -74}
	v := Viewport{Center: center, RadiusNM: 10, Width: 81, Height: 41}

	t.Run("Centre", func(t *testing.T) {
		x, y, ok := v.Project(traffic.LatLng{Latitude: 40, Longitude: -74})
		if !ok || x != 40 || y != 20 {
			t.Errorf("Expected centre cell (40,20), got (%d,%d,%v)", x, y, ok)
		}
	})

	t.Run("North is up", func(t *testing.T) {
		p := coordinates.Destination(center, 0, 5)
		x, y, ok := v.Project(traffic.LatLng{Latitude: p.Latitude, Longitude: p.Longitude})
		if !ok || x != 40 || y >= 20 {
			t.Errorf("Expected cell above centre, got (%d,%d,%v)", x, y, ok)
		}
	})

	t.Run("East is stretched right", func(t *testing.T) {
		n := coordinates.Destination(center, 0, 5)
		e := coordinates.Destination(center, 90, 5)
		_, ny, _ := v.Project(traffic.LatLng{Latitude: n.Latitude, Longitude: n.Longitude})
		ex, ey, ok := v.Project(traffic.LatLng{Latitude: e.Latitude, Longitude: e.Longitude})
		if !ok || ey != 20 {
			t.Fatalf("Expected cell on centre row, got (%d,%d,%v)", ex, ey, ok)
		}
		// Same distance covers twice as many columns as rows
		if dx, dy := ex-40, 20-ny; dx < 2*dy-1 || dx > 2*dy+1 {
			t.Errorf("Expected ~2:1 aspect, got dx=%d dy=%d", dx, dy)
		}
	})

	t.Run("Beyond radius", func(t *testing.T) {
		p := coordinates.Destination(center, 45, 11)
		if _, _, ok := v.Project(traffic.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}); ok {
			t.Error("Expected position beyond radius to be hidden")
		}
	})
}

func TestRender(t *testing.T) {
	center := coordinates.Geographic{Latitude: 40, Longitude: -74}
	v := Viewport{Center: center, RadiusNM: 10, Width: 61, Height: 31}
	p := coordinates.Destination(center, 180, 5)

	placed := []Placed{
		{Handle: 1, Position: traffic.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}, Icon: overlay.Icon{Sector: 8, Classification: traffic.SituationalAwareness}},
		{Handle: 2, Position: traffic.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}, Icon: overlay.Icon{Sector: 4, Classification: traffic.Alert}},
		{Handle: 3, Position: traffic.LatLng{Latitude: 50, Longitude: -74}, Icon: overlay.Icon{}},
	}
	grid, blips := v.Render(placed)

	if grid[15][30] != '+' {
		t.Errorf("Expected ownship at centre, got %q", grid[15][30])
	}
	if len(blips) != 2 {
		t.Fatalf("Expected 2 visible blips, got %d", len(blips))
	}
	last := blips[len(blips)-1]
	if !last.Alert() || grid[last.Y][last.X] != '→' {
		t.Errorf("Expected alert glyph to win the shared cell, got %q", grid[last.Y][last.X])
	}
}

func TestGlyph(t *testing.T) {
	tests := []struct {
		sector overlay.Sector
		want   rune
	}{
		{0, '↑'}, {1, '↗'}, {2, '↗'}, {4, '→'}, {8, '↓'}, {12, '←'}, {14, '↖'}, {15, '↑'},
	}
	for _, tt := range tests {
		if got := Glyph(overlay.Icon{Sector: tt.sector}); got != tt.want {
			t.Errorf("Glyph(%s) = %q, want %q", tt.sector, got, tt.want)
		}
	}
}
