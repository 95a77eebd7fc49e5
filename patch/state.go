// state.go - Lua view of a signal's arena slot

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package patch

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

const stateTypeName = "signal_state"

// stateView points at the arena cells of the voice currently being
// evaluated. Reads and writes go straight to the arena, so values survive
// code reloads.
type stateView struct {
	cells []float64
}

func registerStateType(L *lua.LState) {
	mt := L.NewTypeMetatable(stateTypeName)
	L.SetField(mt, "__index", L.NewFunction(stateIndex))
	L.SetField(mt, "__newindex", L.NewFunction(stateNewIndex))
	L.SetField(mt, "__len", L.NewFunction(stateLen))
}

func newState(L *lua.LState, view *stateView) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = view
	L.SetMetatable(ud, L.GetTypeMetatable(stateTypeName))
	return ud
}

func checkState(L *lua.LState) *stateView {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*stateView); ok {
		return v
	}
	L.ArgError(1, "signal state expected")
	return nil
}

// checkCell converts the 1-based Lua index at argument 2.
func checkCell(L *lua.LState, v *stateView) int {
	i := L.CheckInt(2)
	if i < 1 || i > len(v.cells) {
		L.ArgError(2, fmt.Sprintf("state index %d outside 1..%d", i, len(v.cells)))
	}
	return i - 1
}

func stateIndex(L *lua.LState) int {
	v := checkState(L)
	L.Push(lua.LNumber(v.cells[checkCell(L, v)]))
	return 1
}

func stateNewIndex(L *lua.LState) int {
	v := checkState(L)
	i := checkCell(L, v)
	v.cells[i] = float64(L.CheckNumber(3))
	return 0
}

func stateLen(L *lua.LState) int {
	v := checkState(L)
	L.Push(lua.LNumber(len(v.cells)))
	return 1
}
