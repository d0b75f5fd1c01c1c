package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmextract/internal/style"
)

var testColumns = []ColumnSpec{
	{Name: "name", Type: style.TypeString},
	{Name: "lanes", Type: style.TypeInteger},
	{Name: "width", Type: style.TypeFloat},
	{Name: "oneway", Type: style.TypeBool},
	{Name: "refs", Type: style.TypeJSON},
}

func testRow() *FeatureRow {
	return &FeatureRow{
		Geometry: orb.Point{13.3888599, 52.5170365},
		Columns: map[string]any{
			"name":   "Unter den Linden",
			"lanes":  "4",
			"width":  int64(20),
			"oneway": "yes",
			"refs":   []int64{1, 2, 3},
		},
	}
}

func TestGeoJSONLOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojsonl")
	s, err := NewGeoJSONL(path, testColumns)
	if err != nil {
		t.Fatalf("NewGeoJSONL: %v", err)
	}
	if err := s.AddFeature(testRow()); err != nil {
		t.Fatalf("AddFeature: %v", err)
	}
	if err := s.AddFeature(testRow()); err != nil {
		t.Fatalf("AddFeature: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var feature struct {
			Type       string         `json:"type"`
			Geometry   map[string]any `json:"geometry"`
			Properties map[string]any `json:"properties"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &feature); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if feature.Type != "Feature" {
			t.Errorf("type = %q", feature.Type)
		}
		if feature.Geometry["type"] != "Point" {
			t.Errorf("geometry type = %v", feature.Geometry["type"])
		}
		props := feature.Properties
		if props["name"] != "Unter den Linden" {
			t.Errorf("name = %v", props["name"])
		}
		if props["lanes"] != float64(4) {
			t.Errorf("lanes = %v (string should coerce to integer)", props["lanes"])
		}
		if props["width"] != float64(20) {
			t.Errorf("width = %v", props["width"])
		}
		if props["oneway"] != true {
			t.Errorf("oneway = %v (yes should coerce to true)", props["oneway"])
		}
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestGeoJSONLAbsentColumnOmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojsonl")
	s, err := NewGeoJSONL(path, testColumns)
	if err != nil {
		t.Fatalf("NewGeoJSONL: %v", err)
	}
	row := &FeatureRow{
		Geometry: orb.Point{0, 1},
		Columns:  map[string]any{"name": "x"},
	}
	if err := s.AddFeature(row); err != nil {
		t.Fatalf("AddFeature: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	data, _ := os.ReadFile(path)
	var feature struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &feature); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := feature.Properties["lanes"]; present {
		t.Error("absent column should not appear in properties")
	}
}

func TestGeoJSONCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	s, err := NewGeoJSON(path, testColumns)
	if err != nil {
		t.Fatalf("NewGeoJSON: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.AddFeature(testRow()); err != nil {
			t.Fatalf("AddFeature: %v", err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var coll struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	if err := json.Unmarshal(data, &coll); err != nil {
		t.Fatalf("output is not a valid FeatureCollection: %v", err)
	}
	if coll.Type != "FeatureCollection" {
		t.Errorf("type = %q", coll.Type)
	}
	if len(coll.Features) != 3 {
		t.Errorf("features = %d, want 3", len(coll.Features))
	}
}

func TestGeoJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geojson")
	s, err := NewGeoJSON(path, nil)
	if err != nil {
		t.Fatalf("NewGeoJSON: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	data, _ := os.ReadFile(path)
	var coll struct {
		Features []any `json:"features"`
	}
	if err := json.Unmarshal(data, &coll); err != nil {
		t.Fatalf("empty collection is not valid JSON: %v", err)
	}
	if len(coll.Features) != 0 {
		t.Errorf("features = %d", len(coll.Features))
	}
}

func TestGeoParquetWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	s, err := NewGeoParquet(path, testColumns, 2)
	if err != nil {
		t.Fatalf("NewGeoParquet: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AddFeature(testRow()); err != nil {
			t.Fatalf("AddFeature: %v", err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) < 8 || string(data[:4]) != "PAR1" {
		t.Error("output is not a parquet file")
	}
	if !bytes.Contains(data, []byte("geo")) {
		t.Error("missing geo metadata key")
	}
}

func TestCoercions(t *testing.T) {
	if n := coerceInt("12"); n == nil || *n != 12 {
		t.Errorf("coerceInt(\"12\") = %v", n)
	}
	if n := coerceInt("many"); n != nil {
		t.Errorf("coerceInt(\"many\") = %v, want nil", *n)
	}
	if f := coerceFloat(int64(3)); f == nil || *f != 3 {
		t.Errorf("coerceFloat(3) = %v", f)
	}
	if b := coerceBool("no"); b == nil || *b {
		t.Errorf("coerceBool(\"no\") = %v", b)
	}
	if b := coerceBool("maybe"); b != nil {
		t.Errorf("coerceBool(\"maybe\") = %v, want nil", *b)
	}
	if s := coerceString(int64(7)); s == nil || *s != "7" {
		t.Errorf("coerceString(7) = %v", s)
	}
	if s := coerceString(nil); s != nil {
		t.Errorf("coerceString(nil) = %v, want nil", *s)
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	if _, err := Open("csv", "out.csv", nil, Options{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOpenStdoutOnlyForGeoJSONL(t *testing.T) {
	for _, format := range []string{"geojson", "geoparquet", "postgres"} {
		if _, err := Open(format, "-", nil, Options{}); err == nil {
			t.Errorf("Open(%q, \"-\") should fail", format)
		}
	}
}
