// Package ewkb encodes orb geometries as PostGIS extended WKB: standard
// little-endian WKB with the SRID flag set and the SRID embedded.
package ewkb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	wkbPoint      = 1
	wkbLineString = 2
	wkbPolygon    = 3

	sridFlag = 0x20000000
)

// SRID4326 is WGS84, the SRID of all coordinates in the source data.
const SRID4326 = 4326

// Encoder encodes geometries with an embedded SRID. The internal buffer is
// reused across calls; the returned slice is only valid until the next
// Encode.
type Encoder struct {
	buf  []byte
	srid uint32
}

func NewEncoder(srid int) *Encoder {
	return &Encoder{buf: make([]byte, 0, 256), srid: uint32(srid)}
}

// Encode encodes a Point, LineString or Polygon.
func (e *Encoder) Encode(g orb.Geometry) ([]byte, error) {
	e.buf = e.buf[:0]
	switch geom := g.(type) {
	case orb.Point:
		e.header(wkbPoint)
		e.point(geom)
	case orb.LineString:
		e.header(wkbLineString)
		e.uint32(uint32(len(geom)))
		for _, p := range geom {
			e.point(p)
		}
	case orb.Polygon:
		e.header(wkbPolygon)
		e.uint32(uint32(len(geom)))
		for _, ring := range geom {
			e.uint32(uint32(len(ring)))
			for _, p := range ring {
				e.point(p)
			}
		}
	default:
		return nil, fmt.Errorf("cannot encode geometry type %T", g)
	}
	return e.buf, nil
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01) // little-endian
	e.uint32(geomType | sridFlag)
	e.uint32(e.srid)
}

func (e *Encoder) point(p orb.Point) {
	e.float64(p[0])
	e.float64(p[1])
}

func (e *Encoder) uint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) float64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
