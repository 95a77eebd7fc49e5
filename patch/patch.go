// patch.go - Lua patch compiler

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

// Package patch turns Lua source into engine generators. A patch declares
// its signals with signal(name, fn); the engine then calls fn(ctx, state)
// once per sample. fn returns a number for mono output or a table of
// numbers for one value per channel.
//
//	signal("lfo", function(ctx, s)
//	    s[1] = (s[1] + 0.5 * ctx.dt) % 1
//	    return 0.2 * math.sin(tau * s[1])
//	end)
package patch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/exp/rand"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

var (
	ErrNoSignals = errors.New("patch defines no signals")
	ErrBadResult = errors.New("signal returned a non-numeric value")
)

// CompileTimeout bounds the top-level code of a patch. Per-sample calls are
// not bounded.
var CompileTimeout = 2 * time.Second

// Patch is one compiled source file. Its generators share a single Lua
// state, so every call into Lua holds mu. Generators are only ever run by
// the engine's producer, which keeps that lock uncontended.
type Patch struct {
	Path string

	mu     sync.Mutex
	L      *lua.LState
	rng    *rand.Rand
	names  []string
	gens   map[string]engine.Generator
	closed bool
}

// Load reads and compiles the patch file at path.
func Load(path string) (*Patch, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(path, string(src))
}

// Compile runs src and collects the signals it declares. path is used for
// error messages and to seed noise().
func Compile(path, src string) (*Patch, error) {
	p := &Patch{
		Path: path,
		L:    lua.NewState(lua.Options{SkipOpenLibs: true}),
		rng:  rand.New(rand.NewSource(seedFor(path))),
		gens: make(map[string]engine.Generator),
	}
	if err := p.run(src); err != nil {
		p.L.Close()
		return nil, err
	}
	if len(p.names) == 0 {
		p.L.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoSignals)
	}
	return p, nil
}

func (p *Patch) run(src string) error {
	L := p.L
	if err := openLibs(L); err != nil {
		return err
	}
	registerStateType(L)
	L.SetGlobal("signal", L.NewFunction(p.luaSignal))
	L.SetGlobal("noise", L.NewFunction(p.luaNoise))
	L.SetGlobal("tau", lua.LNumber(2*math.Pi))

	ctx, cancel := context.WithTimeout(context.Background(), CompileTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	fn, err := L.Load(strings.NewReader(src), p.Path)
	if err != nil {
		return err
	}
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: top-level code did not finish within %v", p.Path, CompileTimeout)
		}
		return err
	}
	return nil
}

// openLibs opens the libraries a patch may use. io and os are left out.
func openLibs(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open lua %q library: %w", lib.name, err)
		}
	}
	return nil
}

func seedFor(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// Names lists the declared signals in declaration order.
func (p *Patch) Names() []string {
	return append([]string(nil), p.names...)
}

// Generator returns the generator compiled for name.
func (p *Patch) Generator(name string) (engine.Generator, bool) {
	g, ok := p.gens[name]
	return g, ok
}

// Close releases the Lua state. Generators of a closed patch output
// silence, so it is safe to close a patch whose voices are still fading.
func (p *Patch) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}

// signal(name, fn)
func (p *Patch) luaSignal(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	if name == "" {
		L.ArgError(1, "empty signal name")
		return 0
	}
	if _, ok := p.gens[name]; !ok {
		p.names = append(p.names, name)
	}
	p.gens[name] = p.generator(name, fn)
	return 0
}

// noise() returns a uniform value in [-1, 1).
func (p *Patch) luaNoise(L *lua.LState) int {
	L.Push(lua.LNumber(p.rng.Float64()*2 - 1))
	return 1
}

// generator wraps fn. The ctx table and the state userdata are allocated
// once and refreshed on every call.
func (p *Patch) generator(name string, fn *lua.LFunction) engine.Generator {
	L := p.L
	args := L.NewTable()
	view := &stateView{}
	state := newState(L, view)
	call := lua.P{Fn: fn, NRet: 1, Protect: true}
	var multi []float64

	return func(ctx *engine.Context) engine.Sample {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return engine.Silence
		}

		view.cells = ctx.State
		args.RawSetString("t", lua.LNumber(ctx.T))
		args.RawSetString("dt", lua.LNumber(ctx.DT))
		args.RawSetString("idx", lua.LNumber(ctx.Idx))
		args.RawSetString("sr", lua.LNumber(ctx.SR))
		args.RawSetString("x", lua.LNumber(ctx.Position.X))
		args.RawSetString("y", lua.LNumber(ctx.Position.Y))
		args.RawSetString("z", lua.LNumber(ctx.Position.Z))

		err := L.CallByParam(call, args, state)
		view.cells = nil
		if err != nil {
			panic(fmt.Errorf("signal %q: %w", name, err))
		}
		ret := L.Get(-1)
		L.Pop(1)

		switch v := ret.(type) {
		case lua.LNumber:
			return engine.Mono(float64(v))
		case *lua.LTable:
			multi = multi[:0]
			for i := 1; i <= v.Len(); i++ {
				n, ok := v.RawGetInt(i).(lua.LNumber)
				if !ok {
					panic(fmt.Errorf("signal %q: %w at index %d", name, ErrBadResult, i))
				}
				multi = append(multi, float64(n))
			}
			return engine.Multi(multi...)
		}
		if ret == lua.LNil {
			return engine.Silence
		}
		panic(fmt.Errorf("signal %q: %w (%s)", name, ErrBadResult, ret.Type()))
	}
}
