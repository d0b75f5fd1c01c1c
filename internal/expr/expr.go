// Package expr compiles and evaluates Lua expressions for computed columns.
//
// An expression like `tags.name .. " (" .. tags.ref .. ")"` is compiled once
// at config load into bytecode. Each pipeline worker owns an Evaluator (Lua
// states are not safe for concurrent use) and runs the shared bytecode with
// the element's tags and metadata bound as globals.
package expr

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	luaparse "github.com/yuin/gopher-lua/parse"
)

// Program is a compiled column expression, safe to share across workers.
type Program struct {
	Source string
	proto  *lua.FunctionProto
}

// Compile wraps a column expression in a return statement and compiles it.
func Compile(source string) (*Program, error) {
	src := "return (" + source + ")"
	chunk, err := luaparse.Parse(strings.NewReader(src), "column")
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	proto, err := lua.Compile(chunk, "column")
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &Program{Source: source, proto: proto}, nil
}

// Evaluator runs compiled expressions. Not safe for concurrent use; each
// worker creates its own.
type Evaluator struct {
	state *lua.LState
}

func NewEvaluator() *Evaluator {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	return &Evaluator{state: L}
}

func (e *Evaluator) Close() {
	e.state.Close()
}

// Eval runs a program with tags and meta bound as global tables. A nil
// result means the column is absent for this element.
func (e *Evaluator) Eval(p *Program, tags map[string]string, meta map[string]any) (any, error) {
	L := e.state

	tagsTbl := L.NewTable()
	for k, v := range tags {
		tagsTbl.RawSetString(k, lua.LString(v))
	}
	L.SetGlobal("tags", tagsTbl)

	metaTbl := L.NewTable()
	for k, v := range meta {
		metaTbl.RawSetString(k, toLua(L, v))
	}
	L.SetGlobal("meta", metaTbl)

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("expression %q: %w", p.Source, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[k.String()] = fromLua(item)
		})
		return out
	default:
		return v.String()
	}
}
