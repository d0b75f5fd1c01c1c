package style

import (
	"strings"
	"testing"
)

const basicConfig = `
table:
  name: restaurants
  filter: "amenity=restaurant|cafe"
  columns:
    - name: name
      source: name
      type: string
    - name: cuisine
      source: "tag:cuisine"
      type: string
    - name: osm_id
      source: "meta:id"
      type: integer
`

func mustCompile(t *testing.T, yml string) *Table {
	t.Helper()
	cfg, err := Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	table, err := cfg.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return table
}

func TestCompileBasic(t *testing.T) {
	table := mustCompile(t, basicConfig)
	if table.Name != "restaurants" {
		t.Errorf("name = %q", table.Name)
	}
	if len(table.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(table.Columns))
	}
	if table.Columns[0].Source.Kind != SourceTag || table.Columns[0].Source.Key != "name" {
		t.Errorf("bare source should compile to tag: %+v", table.Columns[0].Source)
	}
	if table.Columns[2].Source.Kind != SourceMeta || table.Columns[2].Source.Key != "id" {
		t.Errorf("meta source: %+v", table.Columns[2].Source)
	}

	if !table.Filter.Matches(map[string]string{"amenity": "cafe"}) {
		t.Error("filter should match cafe")
	}
	if table.Filter.Matches(map[string]string{"amenity": "bank"}) {
		t.Error("filter should not match bank")
	}
}

func TestCompileGeometryDefaults(t *testing.T) {
	table := mustCompile(t, basicConfig)
	if !table.NodeGeometry {
		t.Error("node geometry should default to enabled")
	}
	if !table.Way.Enabled || table.Way.Mode != WayLinestring {
		t.Errorf("way should default to linestring: %+v", table.Way)
	}
	if table.ClosedWayMode != WayPolygon {
		t.Errorf("closed_way should default to polygon, got %q", table.ClosedWayMode)
	}
}

func TestCompileGeometrySettings(t *testing.T) {
	table := mustCompile(t, `
table:
  name: buildings
  filter: "building"
  geometry:
    node: false
    way: polygon
    closed_way: centroid
  columns:
    - name: kind
      source: building
      type: string
`)
	if table.NodeGeometry {
		t.Error("node geometry should be off")
	}
	if table.Way.Mode != WayPolygon {
		t.Errorf("way mode = %q", table.Way.Mode)
	}
	if table.ClosedWayMode != WayCentroid {
		t.Errorf("closed_way = %q", table.ClosedWayMode)
	}
}

func TestCompileWayDisabled(t *testing.T) {
	table := mustCompile(t, `
table:
  name: pois
  filter: "amenity"
  geometry:
    way: false
  columns:
    - name: amenity
      source: amenity
      type: string
`)
	if table.Way.Enabled {
		t.Error("way geometry should be disabled")
	}
	if table.NeedsWayGeometry() {
		t.Error("NeedsWayGeometry should be false")
	}
}

func TestCompileStructuredFilter(t *testing.T) {
	table := mustCompile(t, `
table:
  name: roads
  filter:
    any:
      - highway: primary
      - highway: secondary
      - tag: railway
  columns:
    - name: kind
      source: highway
      type: string
`)
	for _, tags := range []map[string]string{
		{"highway": "primary"},
		{"highway": "secondary"},
		{"railway": "rail"},
	} {
		if !table.Filter.Matches(tags) {
			t.Errorf("filter should match %v", tags)
		}
	}
	if table.Filter.Matches(map[string]string{"highway": "tertiary"}) {
		t.Error("filter should not match tertiary")
	}
}

func TestCompileStructuredNot(t *testing.T) {
	table := mustCompile(t, `
table:
  name: paths
  filter:
    all:
      - tag: highway
      - not:
          highway: motorway
  columns:
    - name: kind
      source: highway
      type: string
`)
	if !table.Filter.Matches(map[string]string{"highway": "path"}) {
		t.Error("should match path")
	}
	if table.Filter.Matches(map[string]string{"highway": "motorway"}) {
		t.Error("should not match motorway")
	}
}

func TestCompileSimpleMapFilter(t *testing.T) {
	table := mustCompile(t, `
table:
  name: schools
  filter:
    amenity: school
    building: "yes"
  columns:
    - name: name
      source: name
      type: string
`)
	if !table.Filter.Matches(map[string]string{"amenity": "school", "building": "yes"}) {
		t.Error("should match when both tags present")
	}
	if table.Filter.Matches(map[string]string{"amenity": "school"}) {
		t.Error("should require every entry of the map")
	}
}

func TestCompileMissingFilterMatchesAll(t *testing.T) {
	table := mustCompile(t, `
table:
  name: everything
  columns:
    - name: props
      source: tags
      type: json
`)
	if !table.Filter.Matches(map[string]string{}) {
		t.Error("absent filter should match everything")
	}
}

func TestCompileMappingColumn(t *testing.T) {
	table := mustCompile(t, `
table:
  name: pois
  filter: "amenity"
  columns:
    - name: category
      source: "mapping:category"
      type: string
mappings:
  category:
    rules:
      - match: "amenity=restaurant"
        value: food
      - match: "amenity=cafe"
        value: food
    default: misc
`)
	col := table.Columns[0]
	if col.Source.Kind != SourceMapping || col.Source.Mapping == nil {
		t.Fatalf("mapping column: %+v", col.Source)
	}
	if got, _ := col.Source.Mapping.Classify(map[string]string{"amenity": "cafe"}); got != "food" {
		t.Errorf("cafe classified as %q", got)
	}
	if got, _ := col.Source.Mapping.Classify(map[string]string{"amenity": "bakery"}); got != "misc" {
		t.Errorf("bakery classified as %q", got)
	}
}

func TestCompileExprColumn(t *testing.T) {
	table := mustCompile(t, `
table:
  name: roads
  filter: "highway"
  columns:
    - name: label
      source: "expr:tags.ref"
      type: string
`)
	if table.Columns[0].Source.Kind != SourceExpr || table.Columns[0].Source.Program == nil {
		t.Fatalf("expr column: %+v", table.Columns[0].Source)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{
			"unknown mapping",
			`
table:
  name: t
  columns:
    - name: c
      source: "mapping:nope"
      type: string
`,
			"unknown mapping",
		},
		{
			"unknown meta field",
			`
table:
  name: t
  columns:
    - name: c
      source: "meta:flavor"
      type: string
`,
			"unknown metadata field",
		},
		{
			"bad filter",
			`
table:
  name: t
  filter: "amenity="
  columns:
    - name: c
      source: amenity
      type: string
`,
			"filter error",
		},
		{
			"no columns",
			`
table:
  name: t
  filter: "amenity"
`,
			"no columns",
		},
		{
			"deprecated tables",
			`
tables:
  - name: t
`,
			"deprecated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yml))
			if err == nil {
				_, err = cfg.Compile()
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestUnknownColumnType(t *testing.T) {
	_, err := Parse([]byte(`
table:
  name: t
  columns:
    - name: c
      source: amenity
      type: blob
`))
	if err == nil || !strings.Contains(err.Error(), "unknown column type") {
		t.Errorf("expected unknown column type error, got %v", err)
	}
}
