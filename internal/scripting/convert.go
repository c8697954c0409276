package scripting

import (
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/roomserver/internal/room/attr"
)

// toLua converts a decoded JSON value (or a plain Go value the room hands
// out) into a Lua value. Unsupported types become nil.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, e := range x {
			t.Append(toLua(L, e))
		}
		return t
	case []string:
		t := L.CreateTable(len(x), 0)
		for _, e := range x {
			t.Append(lua.LString(e))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case map[string]string:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			t.RawSetString(k, lua.LString(e))
		}
		return t
	default:
		return lua.LNil
	}
}

// fromLua converts a Lua value into the shapes encoding/json produces.
// A table whose keys are exactly 1..n becomes a slice; any other table
// becomes a map keyed by the string form of each key.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.Len(); n > 0 && countKeys(x) == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, e lua.LValue) {
			out[k.String()] = fromLua(e)
		})
		return out
	default:
		return nil
	}
}

// stringMap converts a Lua table to attribute strings, keyed by the string
// form of each key. Non-table input yields an empty map.
func stringMap(v lua.LValue) map[string]string {
	out := make(map[string]string)
	t, ok := v.(*lua.LTable)
	if !ok {
		return out
	}
	t.ForEach(func(k, e lua.LValue) {
		out[k.String()] = attr.Stringify(fromLua(e))
	})
	return out
}

// stringSlice returns the array part of t as strings.
func stringSlice(t *lua.LTable) []string {
	n := t.Len()
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, attr.Stringify(fromLua(t.RawGetInt(i))))
	}
	return out
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
