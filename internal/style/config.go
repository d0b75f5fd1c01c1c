// Package style loads and compiles table configuration from YAML.
//
// A config file declares one output table: its filter (a DSL string or a
// structured any/all/not tree), its columns, its geometry settings, and any
// named classification mappings referenced by mapping: columns.
package style

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmextract/internal/filter"
)

// Config is the raw YAML table configuration, before compilation.
type Config struct {
	Table    TableConfig              `yaml:"table"`
	Mappings map[string]MappingConfig `yaml:"mappings"`
}

// TableConfig declares one output table.
type TableConfig struct {
	Name     string         `yaml:"name"`
	Filter   FilterInput    `yaml:"filter"`
	Columns  []ColumnConfig `yaml:"columns"`
	Geometry GeometryConfig `yaml:"geometry"`
}

// ColumnConfig declares one output column.
type ColumnConfig struct {
	Name   string     `yaml:"name"`
	Source string     `yaml:"source"`
	Type   ColumnType `yaml:"type"`
}

// MappingConfig is a raw classification mapping: ordered rules plus an
// optional default.
type MappingConfig struct {
	Rules   []MappingRuleConfig `yaml:"rules"`
	Default *string             `yaml:"default"`
}

// MappingRuleConfig pairs a DSL match expression with the value it yields.
type MappingRuleConfig struct {
	Match string `yaml:"match"`
	Value string `yaml:"value"`
}

// ColumnType is the declared output type of a column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeBool    ColumnType = "bool"
	TypeJSON    ColumnType = "json"
)

func (t *ColumnType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch ColumnType(s) {
	case TypeString, TypeInteger, TypeFloat, TypeBool, TypeJSON:
		*t = ColumnType(s)
		return nil
	default:
		return fmt.Errorf("unknown column type %q", s)
	}
}

// WayMode controls how a way's coordinates become a geometry.
type WayMode string

const (
	WayLinestring WayMode = "linestring"
	WayPolygon    WayMode = "polygon"
	WayCentroid   WayMode = "centroid"
)

// WaySetting is the way geometry option: a mode string, or a bool to toggle
// with the default linestring mode.
type WaySetting struct {
	Enabled bool
	Mode    WayMode
}

func (w *WaySetting) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*w = WaySetting{Enabled: b, Mode: WayLinestring}
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("geometry.way must be a mode or a bool")
	}
	switch WayMode(s) {
	case WayLinestring, WayPolygon, WayCentroid:
		*w = WaySetting{Enabled: true, Mode: WayMode(s)}
		return nil
	default:
		return fmt.Errorf("unknown way geometry mode %q", s)
	}
}

// GeometryConfig controls which element kinds produce geometry and how.
type GeometryConfig struct {
	Node      *bool       `yaml:"node"`
	Way       *WaySetting `yaml:"way"`
	ClosedWay WayMode     `yaml:"closed_way"`
}

// NodeEnabled reports whether node features are emitted (default true).
func (g GeometryConfig) NodeEnabled() bool {
	return g.Node == nil || *g.Node
}

// WaySetting returns the way geometry setting, defaulting to linestring.
func (g GeometryConfig) WaySetting() WaySetting {
	if g.Way == nil {
		return WaySetting{Enabled: true, Mode: WayLinestring}
	}
	return *g.Way
}

// ClosedWayMode returns the closed-way geometry mode, defaulting to polygon.
func (g GeometryConfig) ClosedWayMode() (WayMode, error) {
	switch g.ClosedWay {
	case "":
		return WayPolygon, nil
	case WayLinestring, WayPolygon, WayCentroid:
		return g.ClosedWay, nil
	default:
		return "", fmt.Errorf("unknown closed_way mode %q", g.ClosedWay)
	}
}

// FilterInput is either a DSL string or a structured filter tree; it
// compiles to a filter.Expr.
type FilterInput struct {
	node *yaml.Node
}

func (f *FilterInput) UnmarshalYAML(node *yaml.Node) error {
	f.node = node
	return nil
}

// Compile turns the raw filter input into a predicate. An absent filter
// compiles to the always-true predicate.
func (f FilterInput) Compile() (filter.Expr, error) {
	if f.node == nil {
		return filter.True{}, nil
	}
	return compileFilterNode(f.node)
}

func compileFilterNode(node *yaml.Node) (filter.Expr, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		return filter.Parse(s)
	case yaml.MappingNode:
		return compileStructured(node)
	default:
		return nil, fmt.Errorf("filter must be a string or a mapping")
	}
}

// compileStructured handles the map forms: any/all/not combinators, the
// tag/value(s) match form, and the plain key: value equality map.
func compileStructured(node *yaml.Node) (filter.Expr, error) {
	keys := make(map[string]*yaml.Node, len(node.Content)/2)
	order := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = node.Content[i+1]
		order = append(order, node.Content[i].Value)
	}

	if child, ok := keys["any"]; ok {
		children, err := compileFilterList(child)
		if err != nil {
			return nil, err
		}
		return filter.NewOr(children...), nil
	}
	if child, ok := keys["all"]; ok {
		children, err := compileFilterList(child)
		if err != nil {
			return nil, err
		}
		return filter.NewAnd(children...), nil
	}
	if child, ok := keys["not"]; ok {
		inner, err := compileFilterNode(child)
		if err != nil {
			return nil, err
		}
		return filter.Not{Child: inner}, nil
	}
	if _, ok := keys["tag"]; ok {
		return compileTagForm(node)
	}

	// Plain map: every key must equal its value.
	children := make([]filter.Expr, 0, len(order))
	for _, key := range order {
		var value string
		if err := keys[key].Decode(&value); err != nil {
			return nil, fmt.Errorf("filter value for %q must be a string", key)
		}
		children = append(children, filter.TagMatch{
			Key:    key,
			Values: []filter.Value{filter.NewValue(value)},
		})
	}
	return filter.NewAnd(children...), nil
}

func compileFilterList(node *yaml.Node) ([]filter.Expr, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("any/all must hold a list of filters")
	}
	children := make([]filter.Expr, 0, len(node.Content))
	for _, item := range node.Content {
		child, err := compileFilterNode(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func compileTagForm(node *yaml.Node) (filter.Expr, error) {
	var raw struct {
		Tag    string   `yaml:"tag"`
		Value  *string  `yaml:"value"`
		Values []string `yaml:"values"`
	}
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	if raw.Value == nil && len(raw.Values) == 0 {
		return filter.Exists{Key: raw.Tag}, nil
	}
	values := make([]filter.Value, 0, len(raw.Values)+1)
	if raw.Value != nil {
		values = append(values, filter.NewValue(*raw.Value))
	}
	for _, v := range raw.Values {
		values = append(values, filter.NewValue(v))
	}
	return filter.TagMatch{Key: raw.Tag, Values: values}, nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if _, ok := probe["tables"]; ok {
		return nil, fmt.Errorf("config uses deprecated 'tables:' syntax; use 'table:' (singular) with a 'name' field")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if cfg.Table.Name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(cfg.Table.Columns) == 0 {
		return nil, fmt.Errorf("table %q declares no columns", cfg.Table.Name)
	}
	return &cfg, nil
}
