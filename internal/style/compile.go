package style

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wegman-software/osmextract/internal/expr"
	"github.com/wegman-software/osmextract/internal/filter"
)

// SourceKind says where a column's value comes from.
type SourceKind int

const (
	SourceTag     SourceKind = iota // one tag value
	SourceMeta                      // one metadata field
	SourceAllTags                   // all tags as a JSON object
	SourceAllMeta                   // all metadata as a JSON object
	SourceRefs                      // way node refs as a JSON array
	SourceMapping                   // classification mapping lookup
	SourceExpr                      // computed Lua expression
)

// MetaFields are the metadata fields addressable as meta:<field>.
var MetaFields = []string{"id", "visible", "version", "changeset", "timestamp", "uid", "user"}

// ColumnSource is a compiled column source.
type ColumnSource struct {
	Kind    SourceKind
	Key     string // tag key or meta field name
	Mapping *filter.Mapping
	Program *expr.Program
}

// Column is a compiled output column.
type Column struct {
	Name   string
	Source ColumnSource
	Type   ColumnType
}

// Table is a compiled table: the filter predicate, columns and geometry
// settings, ready for the pipeline.
type Table struct {
	Name          string
	Filter        filter.Expr
	Columns       []Column
	NodeGeometry  bool
	Way           WaySetting
	ClosedWayMode WayMode
	Mappings      map[string]*filter.Mapping
}

// NeedsWayGeometry reports whether the table resolves way coordinates. When
// false the node store and the first pass are skipped entirely.
func (t *Table) NeedsWayGeometry() bool {
	return t.Way.Enabled
}

// Compile parses all filter expressions and column sources in the config.
func (c *Config) Compile() (*Table, error) {
	mappings := make(map[string]*filter.Mapping, len(c.Mappings))
	names := make([]string, 0, len(c.Mappings))
	for name := range c.Mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mc := c.Mappings[name]
		rules := make([][2]string, len(mc.Rules))
		for i, r := range mc.Rules {
			rules[i] = [2]string{r.Match, r.Value}
		}
		m, err := filter.CompileMapping(name, rules, mc.Default)
		if err != nil {
			return nil, err
		}
		mappings[name] = m
	}

	pred, err := c.Table.Filter.Compile()
	if err != nil {
		return nil, fmt.Errorf("filter error in table %q: %w", c.Table.Name, err)
	}

	columns := make([]Column, 0, len(c.Table.Columns))
	for _, col := range c.Table.Columns {
		src, err := compileSource(col.Source, mappings)
		if err != nil {
			return nil, fmt.Errorf("column %q in table %q: %w", col.Name, c.Table.Name, err)
		}
		colType := col.Type
		if colType == "" {
			colType = TypeString
		}
		columns = append(columns, Column{Name: col.Name, Source: src, Type: colType})
	}

	closedWay, err := c.Table.Geometry.ClosedWayMode()
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", c.Table.Name, err)
	}

	return &Table{
		Name:          c.Table.Name,
		Filter:        pred,
		Columns:       columns,
		NodeGeometry:  c.Table.Geometry.NodeEnabled(),
		Way:           c.Table.Geometry.WaySetting(),
		ClosedWayMode: closedWay,
		Mappings:      mappings,
	}, nil
}

func compileSource(source string, mappings map[string]*filter.Mapping) (ColumnSource, error) {
	switch source {
	case "tags":
		return ColumnSource{Kind: SourceAllTags}, nil
	case "meta":
		return ColumnSource{Kind: SourceAllMeta}, nil
	case "refs":
		return ColumnSource{Kind: SourceRefs}, nil
	}
	if tag, ok := strings.CutPrefix(source, "tag:"); ok {
		return ColumnSource{Kind: SourceTag, Key: tag}, nil
	}
	if field, ok := strings.CutPrefix(source, "meta:"); ok {
		if !validMetaField(field) {
			return ColumnSource{}, fmt.Errorf("unknown metadata field %q", field)
		}
		return ColumnSource{Kind: SourceMeta, Key: field}, nil
	}
	if name, ok := strings.CutPrefix(source, "mapping:"); ok {
		m, ok := mappings[name]
		if !ok {
			return ColumnSource{}, fmt.Errorf("unknown mapping %q", name)
		}
		return ColumnSource{Kind: SourceMapping, Key: name, Mapping: m}, nil
	}
	if src, ok := strings.CutPrefix(source, "expr:"); ok {
		p, err := expr.Compile(src)
		if err != nil {
			return ColumnSource{}, err
		}
		return ColumnSource{Kind: SourceExpr, Program: p}, nil
	}

	// Bare string: treat as a tag key.
	return ColumnSource{Kind: SourceTag, Key: source}, nil
}

func validMetaField(field string) bool {
	for _, f := range MetaFields {
		if f == field {
			return true
		}
	}
	return false
}
