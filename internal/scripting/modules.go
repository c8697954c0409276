package scripting

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// errNoRoom is raised when a room.* function runs outside a hook call, e.g.
// from a script's top-level chunk.
var errNoRoom = errors.New("room API is only available inside hooks")

// registerRoomAPI installs the global "room" table. Every function operates
// on the room bound for the current hook call.
//
// Precondition: L must belong to m's sandbox.
// Postcondition: room global is defined in L.
func (m *Module) registerRoomAPI(L *lua.LState) {
	api := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"id":            m.luaID,
		"server_time":   m.luaServerTime,
		"create_entity": m.luaCreateEntity,
		"remove_entity": m.luaRemoveEntity,
		"update_entity": m.luaUpdateEntity,
		"set_attribute": m.luaSetAttribute,
		"get_attribute": m.luaGetAttribute,
		"entity":        m.luaEntity,
		"entities":      m.luaEntities,
		"users":         m.luaUsers,
		"broadcast":     m.luaBroadcast,
		"send":          m.luaSend,
		"log":           m.luaLog,
	})
	L.SetGlobal("room", api)
}

func (m *Module) bound(L *lua.LState) bool {
	if m.current == nil {
		L.RaiseError("%s", errNoRoom.Error())
		return false
	}
	return true
}

func (m *Module) luaID(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	L.Push(lua.LString(m.current.ID()))
	return 1
}

func (m *Module) luaServerTime(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	L.Push(lua.LNumber(m.current.ServerTime()))
	return 1
}

// room.create_entity(owner_id, creation_id, attributes) -> id | nil, err
func (m *Module) luaCreateEntity(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	owner := L.CheckString(1)
	creationID := L.OptString(2, "")
	attrs, _ := fromLua(L.OptTable(3, L.NewTable())).(map[string]any)
	e, err := m.current.CreateEntity(owner, creationID, attrs)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(e.ID))
	return 1
}

func (m *Module) luaRemoveEntity(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	m.current.RemoveEntity(L.CheckString(1))
	return 0
}

// room.update_entity({id, token, ...}) -> bool
func (m *Module) luaUpdateEntity(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	tokens := stringSlice(L.CheckTable(1))
	L.Push(lua.LBool(m.current.UpdateEntity(tokens)))
	return 1
}

// room.set_attribute(id, {key = value, ...}) -> bool
func (m *Module) luaSetAttribute(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	id := L.CheckString(1)
	values := stringMap(L.CheckTable(2))
	L.Push(lua.LBool(m.current.SetEntityAttributes(id, values)))
	return 1
}

func (m *Module) luaGetAttribute(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	e, ok := m.current.State().Entities.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := e.Attribute(L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

// room.entity(id) -> table | nil
func (m *Module) luaEntity(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	e, ok := m.current.State().Entities.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(entityTable(L, e))
	return 1
}

func (m *Module) luaEntities(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	L.Push(toLua(L, m.current.State().Entities.Keys()))
	return 1
}

func (m *Module) luaUsers(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	L.Push(toLua(L, m.current.State().Users.Keys()))
	return 1
}

func (m *Module) luaBroadcast(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	m.current.Broadcast(L.CheckString(1), fromLua(L.Get(2)))
	return 0
}

func (m *Module) luaSend(L *lua.LState) int {
	if !m.bound(L) {
		return 0
	}
	ok := m.current.Send(L.CheckString(1), L.CheckString(2), fromLua(L.Get(3)))
	L.Push(lua.LBool(ok))
	return 1
}

func (m *Module) luaLog(L *lua.LState) int {
	m.logger.Info("script", zap.String("message", L.CheckString(1)))
	return 0
}

func entityTable(L *lua.LState, e *state.Entity) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(e.ID))
	t.RawSetString("owner_id", lua.LString(e.OwnerID))
	t.RawSetString("creation_id", lua.LString(e.CreationID))
	t.RawSetString("x", lua.LNumber(e.Position.X))
	t.RawSetString("y", lua.LNumber(e.Position.Y))
	t.RawSetString("z", lua.LNumber(e.Position.Z))
	t.RawSetString("timestamp", lua.LNumber(e.Timestamp))
	t.RawSetString("attributes", toLua(L, e.Attributes))
	return t
}
