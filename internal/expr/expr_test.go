package expr

import "testing"

func evalString(t *testing.T, src string, tags map[string]string, meta map[string]any) any {
	t.Helper()
	p, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	e := NewEvaluator()
	defer e.Close()
	got, err := e.Eval(p, tags, meta)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return got
}

func TestEvalTagAccess(t *testing.T) {
	got := evalString(t, `tags.name`, map[string]string{"name": "Main Street"}, nil)
	if got != "Main Street" {
		t.Errorf("got %v, want Main Street", got)
	}
}

func TestEvalConcat(t *testing.T) {
	got := evalString(t, `tags.ref .. ":" .. tags.name`,
		map[string]string{"ref": "A1", "name": "Nord"}, nil)
	if got != "A1:Nord" {
		t.Errorf("got %v", got)
	}
}

func TestEvalMissingTagIsNil(t *testing.T) {
	got := evalString(t, `tags.name`, map[string]string{}, nil)
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestEvalConditional(t *testing.T) {
	got := evalString(t, `tags.oneway == "yes" and 1 or 0`,
		map[string]string{"oneway": "yes"}, nil)
	if got != float64(1) {
		t.Errorf("got %v, want 1", got)
	}
}

func TestEvalMeta(t *testing.T) {
	got := evalString(t, `meta.version * 10`, nil, map[string]any{"version": int32(3)})
	if got != float64(30) {
		t.Errorf("got %v, want 30", got)
	}
}

func TestEvalNumber(t *testing.T) {
	got := evalString(t, `tonumber(tags.lanes) + 1`, map[string]string{"lanes": "2"}, nil)
	if got != float64(3) {
		t.Errorf("got %v, want 3", got)
	}
}

func TestCompileError(t *testing.T) {
	if _, err := Compile(`tags.name ..`); err == nil {
		t.Error("expected compile error")
	}
}

func TestEvalRuntimeError(t *testing.T) {
	p, err := Compile(`tags.lanes + 1`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	e := NewEvaluator()
	defer e.Close()
	if _, err := e.Eval(p, map[string]string{"lanes": "many"}, nil); err == nil {
		t.Error("expected runtime error for arithmetic on non-number")
	}
}

func TestEvaluatorReuse(t *testing.T) {
	p, err := Compile(`tags.name`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	e := NewEvaluator()
	defer e.Close()
	for _, name := range []string{"a", "b", "c"} {
		got, err := e.Eval(p, map[string]string{"name": name}, nil)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got != name {
			t.Errorf("got %v, want %s", got, name)
		}
	}
}
