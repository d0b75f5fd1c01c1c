// Package sink writes feature rows to the configured output: GeoJSON,
// newline-delimited GeoJSON, GeoParquet, or a PostGIS table.
//
// Sinks are single-writer: the pipeline funnels rows from all workers
// through one goroutine, so implementations need no locking.
package sink

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmextract/internal/style"
)

// FeatureRow is one output feature: a geometry, the declared columns, and
// any extra properties (the all-tags object when enabled).
type FeatureRow struct {
	Geometry orb.Geometry
	// Columns maps column name to a typed value: string, int64, float64,
	// bool, or a JSON-marshalable value. Absent columns are simply not in
	// the map and render as null.
	Columns map[string]any
	Extras  map[string]any
}

// ColumnSpec is the declared name and type of an output column.
type ColumnSpec struct {
	Name string
	Type style.ColumnType
}

// Sink consumes feature rows. AddFeature and Finish are called from a
// single goroutine.
type Sink interface {
	AddFeature(row *FeatureRow) error
	// Finish flushes and closes the output. No calls may follow.
	Finish() error
}

// coerceString renders a value as a string, or nil when absent.
func coerceString(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	case int64:
		s := strconv.FormatInt(val, 10)
		return &s
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(val)
		return &s
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		s := string(b)
		return &s
	}
}

// coerceInt renders a value as an int64. Strings parse; a float truncates.
func coerceInt(v any) *int64 {
	switch val := v.(type) {
	case int64:
		return &val
	case float64:
		n := int64(val)
		return &n
	case bool:
		n := int64(0)
		if val {
			n = 1
		}
		return &n
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func coerceFloat(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case int64:
		f := float64(val)
		return &f
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// coerceBool follows the OSM convention for truthy tag values.
func coerceBool(v any) *bool {
	switch val := v.(type) {
	case bool:
		return &val
	case int64:
		b := val != 0
		return &b
	case float64:
		b := val != 0
		return &b
	case string:
		switch val {
		case "yes", "true", "1":
			b := true
			return &b
		case "no", "false", "0":
			b := false
			return &b
		}
		return nil
	default:
		return nil
	}
}

// coerceJSONValue returns the value in a form json.Marshal renders as the
// declared type intends: json columns pass through, everything else keeps
// its native type.
func coerceJSONValue(v any, t style.ColumnType) any {
	switch t {
	case style.TypeInteger:
		if n := coerceInt(v); n != nil {
			return *n
		}
	case style.TypeFloat:
		if f := coerceFloat(v); f != nil {
			return *f
		}
	case style.TypeBool:
		if b := coerceBool(v); b != nil {
			return *b
		}
	case style.TypeJSON:
		return v
	default:
		if s := coerceString(v); s != nil {
			return *s
		}
	}
	return nil
}

// properties assembles the GeoJSON properties object: extras first, then
// declared columns that do not collide with an extra.
func properties(row *FeatureRow, columns []ColumnSpec) map[string]any {
	props := make(map[string]any, len(row.Extras)+len(columns))
	for k, v := range row.Extras {
		props[k] = v
	}
	for _, col := range columns {
		if _, taken := props[col.Name]; taken {
			continue
		}
		v, ok := row.Columns[col.Name]
		if !ok {
			continue
		}
		if coerced := coerceJSONValue(v, col.Type); coerced != nil {
			props[col.Name] = coerced
		}
	}
	return props
}

// Options configure sink creation.
type Options struct {
	BatchSize int
	Postgres  *PostgresOptions
}

// Open creates a sink for the given output format. Format must be one of
// geojson, geojsonl, geoparquet, postgres. Only geojsonl can stream to
// stdout via "-".
func Open(format, path string, columns []ColumnSpec, opts Options) (Sink, error) {
	if path == "-" && format != "geojsonl" {
		return nil, fmt.Errorf("stdout output is only supported for geojsonl, not %q", format)
	}
	switch format {
	case "geojson":
		return NewGeoJSON(path, columns)
	case "geojsonl":
		return NewGeoJSONL(path, columns)
	case "geoparquet", "parquet":
		return NewGeoParquet(path, columns, opts.BatchSize)
	case "postgres":
		if opts.Postgres == nil {
			return nil, fmt.Errorf("postgres output requires database options")
		}
		return NewPostgres(columns, opts.BatchSize, *opts.Postgres)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
