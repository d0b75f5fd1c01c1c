package filter

import "testing"

func tags(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func mustParse(t *testing.T, input string) Expr {
	t.Helper()
	expr, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return expr
}

func TestParseAndMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		tags   map[string]string
		want   bool
	}{
		{"empty matches everything", "", tags("any", "thing"), true},
		{"empty matches no tags", "", tags(), true},

		{"existence hit", "highway", tags("highway", "primary"), true},
		{"existence miss", "highway", tags("railway", "rail"), false},
		{"negated existence hit", "!highway", tags("railway", "rail"), true},
		{"negated existence miss", "!highway", tags("highway", "primary"), false},

		{"exact match", "highway=primary", tags("highway", "primary"), true},
		{"exact mismatch", "highway=primary", tags("highway", "secondary"), false},
		{"exact missing key", "highway=primary", tags("railway", "rail"), false},

		{"value list first", "highway=primary|secondary", tags("highway", "primary"), true},
		{"value list second", "highway=primary|secondary", tags("highway", "secondary"), true},
		{"value list miss", "highway=primary|secondary", tags("highway", "tertiary"), false},

		{"any value", "highway=*", tags("highway", "whatever"), true},
		{"any value missing key", "highway=*", tags("railway", "rail"), false},
		{"glob value", "highway=*_link", tags("highway", "primary_link"), true},
		{"glob value miss", "highway=*_link", tags("highway", "primary"), false},

		{"numeric ge hit", "lanes>=2", tags("lanes", "4"), true},
		{"numeric ge equal", "lanes>=2", tags("lanes", "2"), true},
		{"numeric ge miss", "lanes>=2", tags("lanes", "1"), false},
		{"numeric lt", "maxspeed<50", tags("maxspeed", "30"), true},
		{"numeric ne", "lanes!=2", tags("lanes", "3"), true},
		{"numeric unit suffix", "maxspeed>=50", tags("maxspeed", "50 mph"), true},
		{"numeric non-numeric value", "lanes>=2", tags("lanes", "many"), false},
		{"numeric missing key", "lanes>=2", tags("highway", "primary"), false},

		{"and both", "highway=primary & lanes>=2", tags("highway", "primary", "lanes", "2"), true},
		{"and one miss", "highway=primary & lanes>=2", tags("highway", "primary", "lanes", "1"), false},
		{"or second", "highway=primary | railway=rail", tags("railway", "rail"), true},
		{"or neither", "highway=primary | railway=rail", tags("waterway", "river"), false},

		{"value list then boolean or", "highway=primary|secondary | lanes>=2",
			tags("highway", "tertiary", "lanes", "4"), true},
		{"value list then boolean or miss", "highway=primary|secondary | lanes>=2",
			tags("highway", "tertiary", "lanes", "1"), false},

		{"parens", "(highway=primary | highway=secondary) & lanes>=2",
			tags("highway", "secondary", "lanes", "3"), true},
		{"negated group", "!(highway=primary | highway=secondary)",
			tags("highway", "tertiary"), true},
		{"negated comparison", "!highway=primary", tags("highway", "secondary"), true},

		{"numeric-looking ident", "surface=4wd_only", tags("surface", "4wd_only"), true},
		{"numeric value in list", "lanes=2|4", tags("lanes", "4"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := mustParse(t, tt.filter)
			if got := expr.Matches(tt.tags); got != tt.want {
				t.Errorf("Parse(%q).Matches(%v) = %v, want %v", tt.filter, tt.tags, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"highway=",
		"lanes>=",
		"lanes>=fast",
		"(highway=primary",
		"highway=primary)",
		"=primary",
		"highway=primary &",
		"a @ b",
	}
	for _, in := range inputs {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", in)
		}
	}
}

func TestParseShape(t *testing.T) {
	expr := mustParse(t, "highway=primary|secondary & lanes>=2")
	and, ok := expr.(And)
	if !ok {
		t.Fatalf("expected And at root, got %T", expr)
	}
	if len(and.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(and.Children))
	}
	tm, ok := and.Children[0].(TagMatch)
	if !ok {
		t.Fatalf("expected TagMatch, got %T", and.Children[0])
	}
	if tm.Key != "highway" || len(tm.Values) != 2 {
		t.Errorf("unexpected TagMatch: %+v", tm)
	}
	nc, ok := and.Children[1].(NumCompare)
	if !ok {
		t.Fatalf("expected NumCompare, got %T", and.Children[1])
	}
	if nc.Key != "lanes" || nc.Op != OpGe || nc.Value != 2 {
		t.Errorf("unexpected NumCompare: %+v", nc)
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"50", 50, true},
		{"50.5", 50.5, true},
		{"-10", -10, true},
		{"50 mph", 50, true},
		{"50mph", 50, true},
		{"none", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumeric(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseNumeric(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
