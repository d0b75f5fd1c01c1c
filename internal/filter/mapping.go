package filter

import "fmt"

// Mapping classifies tags through an ordered rule list. The first rule
// whose predicate matches wins. When nothing matches, the declared default
// is returned; without a default the result is absent (ok == false) and the
// column is rendered as null.
type Mapping struct {
	Name    string
	Rules   []MappingRule
	Default *string
}

// MappingRule pairs a predicate with the value it yields.
type MappingRule struct {
	Filter Expr
	Value  string
}

// CompileMapping parses the match expressions of a mapping's rules.
func CompileMapping(name string, rules [][2]string, def *string) (*Mapping, error) {
	m := &Mapping{Name: name, Default: def, Rules: make([]MappingRule, 0, len(rules))}
	for i, rule := range rules {
		expr, err := Parse(rule[0])
		if err != nil {
			return nil, fmt.Errorf("rule %d in mapping %q: %w", i+1, name, err)
		}
		m.Rules = append(m.Rules, MappingRule{Filter: expr, Value: rule[1]})
	}
	return m, nil
}

// Classify evaluates the mapping against tags.
func (m *Mapping) Classify(tags map[string]string) (string, bool) {
	for _, rule := range m.Rules {
		if rule.Filter.Matches(tags) {
			return rule.Value, true
		}
	}
	if m.Default != nil {
		return *m.Default, true
	}
	return "", false
}
