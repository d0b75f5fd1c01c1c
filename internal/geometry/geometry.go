// Package geometry builds output geometries from resolved coordinates.
package geometry

import (
	"github.com/paulmach/orb"

	"github.com/wegman-software/osmextract/internal/style"
)

// NodePoint builds a point geometry from a node coordinate.
func NodePoint(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Way builds a geometry from a way's resolved coordinates. A way with fewer
// than two coordinates is dropped (ok == false) rather than emitted as a
// degenerate geometry. A closed way (first and last coordinate equal) uses
// the closed-way mode instead of the open-way mode.
func Way(coords []orb.Point, way style.WaySetting, closedWay style.WayMode) (orb.Geometry, bool) {
	if len(coords) < 2 {
		return nil, false
	}

	mode := way.Mode
	if coords[0] == coords[len(coords)-1] {
		mode = closedWay
	}

	switch mode {
	case style.WayPolygon:
		return orb.Polygon{ring(coords)}, true
	case style.WayCentroid:
		return centroid(coords), true
	default:
		return orb.LineString(coords), true
	}
}

// ring closes the coordinate sequence if needed. Ring winding is kept as
// given; no reordering.
func ring(coords []orb.Point) orb.Ring {
	r := make(orb.Ring, len(coords), len(coords)+1)
	copy(r, coords)
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// centroid is the arithmetic mean of the coordinate sequence, a flat-plane
// approximation rather than a geodesic or area-weighted center.
func centroid(coords []orb.Point) orb.Point {
	var sumX, sumY float64
	for _, c := range coords {
		sumX += c[0]
		sumY += c[1]
	}
	n := float64(len(coords))
	return orb.Point{sumX / n, sumY / n}
}
