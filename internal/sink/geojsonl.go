package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONL writes one GeoJSON feature per line. Path "-" writes to stdout.
type GeoJSONL struct {
	w       *bufio.Writer
	file    *os.File
	columns []ColumnSpec
	enc     *json.Encoder
}

func NewGeoJSONL(path string, columns []ColumnSpec) (*GeoJSONL, error) {
	var out io.Writer
	var file *os.File
	if path == "-" {
		out = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		file = f
		out = f
	}
	w := bufio.NewWriterSize(out, 1<<20)
	return &GeoJSONL{
		w:       w,
		file:    file,
		columns: columns,
		enc:     json.NewEncoder(w),
	}, nil
}

func (s *GeoJSONL) AddFeature(row *FeatureRow) error {
	f := geojson.NewFeature(row.Geometry)
	f.Properties = properties(row, s.columns)
	// json.Encoder appends the newline separating features.
	return s.enc.Encode(f)
}

func (s *GeoJSONL) Finish() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
