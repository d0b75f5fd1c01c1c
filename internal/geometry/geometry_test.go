package geometry

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmextract/internal/style"
)

var lineSetting = style.WaySetting{Enabled: true, Mode: style.WayLinestring}

func TestNodePoint(t *testing.T) {
	p := NodePoint(51.5, -0.12)
	if p[0] != -0.12 || p[1] != 51.5 {
		t.Errorf("NodePoint = %v, want lon/lat order", p)
	}
}

func TestWayDropsDegenerate(t *testing.T) {
	for _, coords := range [][]orb.Point{
		nil,
		{},
		{{1, 1}},
	} {
		if g, ok := Way(coords, lineSetting, style.WayPolygon); ok {
			t.Errorf("Way(%v) = %v, want dropped", coords, g)
		}
	}
}

func TestWayOpenLinestring(t *testing.T) {
	coords := []orb.Point{{0, 0}, {1, 0}, {1, 1}}
	g, ok := Way(coords, lineSetting, style.WayPolygon)
	if !ok {
		t.Fatal("dropped")
	}
	ls, ok := g.(orb.LineString)
	if !ok {
		t.Fatalf("got %T, want LineString", g)
	}
	if len(ls) != 3 {
		t.Errorf("len = %d", len(ls))
	}
}

func TestWayClosedBecomesPolygon(t *testing.T) {
	coords := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	g, ok := Way(coords, lineSetting, style.WayPolygon)
	if !ok {
		t.Fatal("dropped")
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T, want Polygon", g)
	}
	ring := poly[0]
	if len(ring) != 4 {
		t.Errorf("ring has %d points, want 4 (no duplicated closing vertex)", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("ring is not closed")
	}
	// Winding order preserved as given.
	if ring[1] != (orb.Point{1, 0}) || ring[2] != (orb.Point{1, 1}) {
		t.Errorf("ring reordered: %v", ring)
	}
}

func TestWayClosedLinestringMode(t *testing.T) {
	coords := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	g, ok := Way(coords, lineSetting, style.WayLinestring)
	if !ok {
		t.Fatal("dropped")
	}
	if _, isLine := g.(orb.LineString); !isLine {
		t.Errorf("got %T, want LineString", g)
	}
}

func TestWayOpenPolygonModeClosesRing(t *testing.T) {
	coords := []orb.Point{{0, 0}, {2, 0}, {2, 2}}
	g, ok := Way(coords, style.WaySetting{Enabled: true, Mode: style.WayPolygon}, style.WayPolygon)
	if !ok {
		t.Fatal("dropped")
	}
	poly := g.(orb.Polygon)
	ring := poly[0]
	if len(ring) != 4 || ring[0] != ring[3] {
		t.Errorf("open ring not closed: %v", ring)
	}
}

func TestWayCentroid(t *testing.T) {
	coords := []orb.Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	g, ok := Way(coords, style.WaySetting{Enabled: true, Mode: style.WayCentroid}, style.WayPolygon)
	if !ok {
		t.Fatal("dropped")
	}
	p, isPoint := g.(orb.Point)
	if !isPoint {
		t.Fatalf("got %T, want Point", g)
	}
	if p[0] != 1 || p[1] != 1 {
		t.Errorf("centroid = %v, want (1, 1)", p)
	}
}

func TestWayClosedCentroidMode(t *testing.T) {
	coords := []orb.Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}
	g, ok := Way(coords, lineSetting, style.WayCentroid)
	if !ok {
		t.Fatal("dropped")
	}
	if _, isPoint := g.(orb.Point); !isPoint {
		t.Errorf("got %T, want Point", g)
	}
}

func TestWayTwoPointLine(t *testing.T) {
	coords := []orb.Point{{0, 0}, {1, 1}}
	g, ok := Way(coords, lineSetting, style.WayPolygon)
	if !ok {
		t.Fatal("two-point way should not be dropped")
	}
	if _, isLine := g.(orb.LineString); !isLine {
		t.Errorf("got %T, want LineString", g)
	}
}
