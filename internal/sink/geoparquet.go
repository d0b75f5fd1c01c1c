package sink

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/wegman-software/osmextract/internal/style"
)

const defaultBatchSize = 10000

// GeoParquet writes features as a GeoParquet file: a WKB geometry column,
// one nullable column per declared spec, and a JSON properties column,
// zstd-compressed with the `geo` metadata key describing the layout.
type GeoParquet struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	columns   []ColumnSpec
	batchSize int
	count     int
}

func NewGeoParquet(path string, columns []ColumnSpec, batchSize int) (*GeoParquet, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	fields := make([]arrow.Field, 0, len(columns)+2)
	fields = append(fields, arrow.Field{Name: "geometry", Type: arrow.BinaryTypes.Binary})
	for _, col := range columns {
		var dt arrow.DataType
		switch col.Type {
		case style.TypeInteger:
			dt = arrow.PrimitiveTypes.Int64
		case style.TypeFloat:
			dt = arrow.PrimitiveTypes.Float64
		case style.TypeBool:
			dt = arrow.FixedWidthTypes.Boolean
		default:
			dt = arrow.BinaryTypes.String
		}
		fields = append(fields, arrow.Field{Name: col.Name, Type: dt, Nullable: true})
	}
	fields = append(fields, arrow.Field{Name: "properties", Type: arrow.BinaryTypes.String})

	meta := arrow.NewMetadata([]string{"geo"}, []string{geoMetadata()})
	schema := arrow.NewSchema(fields, &meta)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create geoparquet file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &GeoParquet{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		columns:   columns,
		batchSize: batchSize,
	}, nil
}

func geoMetadata() string {
	meta := map[string]any{
		"version":        "1.0.0",
		"primary_column": "geometry",
		"columns": map[string]any{
			"geometry": map[string]any{
				"encoding":       "WKB",
				"geometry_types": []string{"Point", "LineString", "Polygon"},
				"crs":            "EPSG:4326",
			},
		},
	}
	b, _ := json.Marshal(meta)
	return string(b)
}

func (s *GeoParquet) AddFeature(row *FeatureRow) error {
	data, err := wkb.Marshal(row.Geometry)
	if err != nil {
		return fmt.Errorf("failed to encode geometry: %w", err)
	}
	s.builder.Field(0).(*array.BinaryBuilder).Append(data)

	for i, col := range s.columns {
		v := row.Columns[col.Name]
		appendColumn(s.builder.Field(i+1), v, col.Type)
	}

	extras := row.Extras
	if extras == nil {
		extras = map[string]any{}
	}
	props, err := json.Marshal(extras)
	if err != nil {
		return err
	}
	s.builder.Field(len(s.columns) + 1).(*array.StringBuilder).Append(string(props))

	s.count++
	if s.count >= s.batchSize {
		return s.flush()
	}
	return nil
}

func appendColumn(b array.Builder, v any, t style.ColumnType) {
	switch t {
	case style.TypeInteger:
		ib := b.(*array.Int64Builder)
		if n := coerceInt(v); n != nil {
			ib.Append(*n)
		} else {
			ib.AppendNull()
		}
	case style.TypeFloat:
		fb := b.(*array.Float64Builder)
		if f := coerceFloat(v); f != nil {
			fb.Append(*f)
		} else {
			fb.AppendNull()
		}
	case style.TypeBool:
		bb := b.(*array.BooleanBuilder)
		if val := coerceBool(v); val != nil {
			bb.Append(*val)
		} else {
			bb.AppendNull()
		}
	case style.TypeJSON:
		sb := b.(*array.StringBuilder)
		if v == nil {
			sb.AppendNull()
			return
		}
		data, err := json.Marshal(v)
		if err != nil {
			sb.AppendNull()
			return
		}
		sb.Append(string(data))
	default:
		sb := b.(*array.StringBuilder)
		if s := coerceString(v); s != nil {
			sb.Append(*s)
		} else {
			sb.AppendNull()
		}
	}
}

func (s *GeoParquet) flush() error {
	if s.count == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	s.count = 0
	return s.writer.Write(rec)
}

func (s *GeoParquet) Finish() error {
	if err := s.flush(); err != nil {
		return err
	}
	s.builder.Release()
	if err := s.writer.Close(); err != nil {
		return err
	}
	return s.file.Close()
}
