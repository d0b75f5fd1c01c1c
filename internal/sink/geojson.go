package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// GeoJSON streams a FeatureCollection: the wrapper object is written as
// header and footer so features never accumulate in memory.
type GeoJSON struct {
	w       *bufio.Writer
	file    *os.File
	columns []ColumnSpec
	first   bool
}

func NewGeoJSON(path string, columns []ColumnSpec) (*GeoJSON, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.WriteString("{\n  \"type\": \"FeatureCollection\",\n  \"features\": [\n"); err != nil {
		f.Close()
		return nil, err
	}
	return &GeoJSON{w: w, file: f, columns: columns, first: true}, nil
}

func (s *GeoJSON) AddFeature(row *FeatureRow) error {
	if !s.first {
		if _, err := s.w.WriteString(",\n"); err != nil {
			return err
		}
	}
	s.first = false

	f := geojson.NewFeature(row.Geometry)
	f.Properties = properties(row, s.columns)
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = s.w.Write(b)
	return err
}

func (s *GeoJSON) Finish() error {
	if _, err := s.w.WriteString("\n  ]\n}\n"); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
