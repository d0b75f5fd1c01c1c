package filter

import "testing"

func TestMappingClassify(t *testing.T) {
	def := "misc"
	m, err := CompileMapping("category", [][2]string{
		{"amenity=restaurant", "food"},
		{"amenity=cafe", "food"},
		{"shop=*", "retail"},
	}, &def)
	if err != nil {
		t.Fatalf("CompileMapping: %v", err)
	}

	tests := []struct {
		tags map[string]string
		want string
	}{
		{tags("amenity", "restaurant"), "food"},
		{tags("amenity", "cafe"), "food"},
		{tags("shop", "bakery"), "retail"},
		{tags("amenity", "bakery"), "misc"},
		{tags(), "misc"},
	}
	for _, tt := range tests {
		got, ok := m.Classify(tt.tags)
		if !ok || got != tt.want {
			t.Errorf("Classify(%v) = (%q, %v), want (%q, true)", tt.tags, got, ok, tt.want)
		}
	}
}

func TestMappingFirstRuleWins(t *testing.T) {
	m, err := CompileMapping("order", [][2]string{
		{"amenity=*", "first"},
		{"amenity=cafe", "second"},
	}, nil)
	if err != nil {
		t.Fatalf("CompileMapping: %v", err)
	}
	got, ok := m.Classify(tags("amenity", "cafe"))
	if !ok || got != "first" {
		t.Errorf("Classify = (%q, %v), want (\"first\", true)", got, ok)
	}
}

func TestMappingNoDefault(t *testing.T) {
	m, err := CompileMapping("category", [][2]string{
		{"amenity=restaurant", "food"},
	}, nil)
	if err != nil {
		t.Fatalf("CompileMapping: %v", err)
	}
	if got, ok := m.Classify(tags("amenity", "bakery")); ok {
		t.Errorf("Classify = (%q, true), want absent", got)
	}
}

func TestMappingBadRule(t *testing.T) {
	if _, err := CompileMapping("broken", [][2]string{{"amenity=", "x"}}, nil); err == nil {
		t.Error("expected error for malformed rule expression")
	}
}
