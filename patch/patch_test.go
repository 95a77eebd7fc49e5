package patch

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func compile(t *testing.T, src string) *Patch {
	t.Helper()
	p, err := Compile("test.lua", src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func gen(t *testing.T, p *Patch, name string) engine.Generator {
	t.Helper()
	g, ok := p.Generator(name)
	if !ok {
		t.Fatalf("signal %q not declared", name)
	}
	return g
}

// mustPanic calls g and returns the panic value.
func mustPanic(t *testing.T, g engine.Generator, ctx *engine.Context) (v any) {
	t.Helper()
	defer func() { v = recover() }()
	g(ctx)
	t.Fatal("generator did not fail")
	return nil
}

func TestCompileSine(t *testing.T) {
	p := compile(t, `
signal("sine", function(ctx, s)
	return math.sin(tau * 440 * ctx.t)
end)`)

	ctx := &engine.Context{T: 100.0 / 48000, DT: 1.0 / 48000, SR: 48000, State: make([]float64, 4)}
	got := gen(t, p, "sine")(ctx)
	want := math.Sin(2 * math.Pi * 440 * ctx.T)
	if got.IsMulti() || math.Abs(got.At(0)-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got.At(0), want)
	}
}

func TestCompileDeclarationOrder(t *testing.T) {
	p := compile(t, `
signal("b", function() return 0 end)
signal("a", function() return 0 end)
signal("b", function() return 1 end)`)

	names := p.Names()
	if strings.Join(names, ",") != "b,a" {
		t.Fatalf("names = %v", names)
	}
	if v := gen(t, p, "b")(&engine.Context{}).At(0); v != 1 {
		t.Fatalf("redeclared signal kept old body: %v", v)
	}
}

func TestStateIsArenaView(t *testing.T) {
	p := compile(t, `
signal("osc", function(ctx, s)
	s[1] = s[1] + 1
	s[#s] = 7
	return s[1]
end)`)

	cells := make([]float64, 3)
	ctx := &engine.Context{State: cells}
	g := gen(t, p, "osc")
	for range 5 {
		g(ctx)
	}
	if cells[0] != 5 || cells[2] != 7 {
		t.Fatalf("cells = %v", cells)
	}
}

func TestStateOutOfRangeFaults(t *testing.T) {
	p := compile(t, `
signal("bad", function(ctx, s)
	s[5] = 1
	return 0
end)`)
	cells := make([]float64, 4)
	mustPanic(t, gen(t, p, "bad"), &engine.Context{State: cells})
	for _, c := range cells {
		if c != 0 {
			t.Fatalf("out of range write landed: %v", cells)
		}
	}
}

func TestMultiChannelResult(t *testing.T) {
	p := compile(t, `
signal("pan", function(ctx)
	return {0.25, -0.25}
end)`)
	s := gen(t, p, "pan")(&engine.Context{})
	if !s.IsMulti() || s.Channels() != 2 || s.At(0) != 0.25 || s.At(1) != -0.25 {
		t.Fatalf("sample = %+v", s)
	}
}

func TestContextFields(t *testing.T) {
	p := compile(t, `
signal("probe", function(ctx)
	return {ctx.t, ctx.dt, ctx.idx, ctx.sr, ctx.x, ctx.y, ctx.z}
end)`)
	ctx := &engine.Context{
		T: 1.5, DT: 0.5, Idx: 3, SR: 2,
		Position: engine.Position{X: 4, Y: 5, Z: 6},
	}
	s := gen(t, p, "probe")(ctx)
	want := []float64{1.5, 0.5, 3, 2, 4, 5, 6}
	for i, w := range want {
		if s.At(i) != w {
			t.Fatalf("field %d = %v, want %v", i, s.At(i), w)
		}
	}
}

func TestBadResultFaults(t *testing.T) {
	p := compile(t, `
signal("str", function() return "loud" end)
signal("tbl", function() return {1, "x"} end)
signal("err", function() error("boom") end)
signal("nothing", function() end)`)

	for _, name := range []string{"str", "tbl"} {
		v := mustPanic(t, gen(t, p, name), &engine.Context{})
		if err, ok := v.(error); !ok || !errors.Is(err, ErrBadResult) {
			t.Fatalf("%s: panic %v, want ErrBadResult", name, v)
		}
	}
	if v := mustPanic(t, gen(t, p, "err"), &engine.Context{}); !strings.Contains(fmtPanic(v), "boom") {
		t.Fatalf("err: panic %v", v)
	}
	if s := gen(t, p, "nothing")(&engine.Context{}); s.At(0) != 0 {
		t.Fatalf("nil result = %v, want silence", s.At(0))
	}
}

func fmtPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return ""
}

func TestNoiseIsBoundedAndSeeded(t *testing.T) {
	src := `signal("n", function() return noise() end)`
	a := compile(t, src)
	b := compile(t, src)
	ga, gb := gen(t, a, "n"), gen(t, b, "n")
	for range 1000 {
		x := ga(&engine.Context{}).At(0)
		y := gb(&engine.Context{}).At(0)
		if x < -1 || x >= 1 {
			t.Fatalf("noise out of range: %v", x)
		}
		if x != y {
			t.Fatal("noise differs between identical patches")
		}
	}
}

func TestCompileErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":     `signal("x", function( return 1 end)`,
		"runtime":    `error("nope")`,
		"no signals": `local x = 1`,
		"bad args":   `signal(1)`,
		"empty name": `signal("", function() return 0 end)`,
		"sandbox":    `os.exit(1)`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if p, err := Compile("bad.lua", src); err == nil {
				p.Close()
				t.Fatal("Compile succeeded")
			}
		})
	}
	if _, err := Compile("empty.lua", ""); !errors.Is(err, ErrNoSignals) {
		t.Fatalf("empty patch err = %v, want ErrNoSignals", err)
	}
}

func TestCompileTimeout(t *testing.T) {
	saved := CompileTimeout
	CompileTimeout = 50 * time.Millisecond
	defer func() { CompileTimeout = saved }()

	start := time.Now()
	if _, err := Compile("loop.lua", `while true do end`); err == nil {
		t.Fatal("endless top-level loop compiled")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestClosedPatchIsSilent(t *testing.T) {
	p, err := Compile("c.lua", `signal("x", function() return 1 end)`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g := gen(t, p, "x")
	p.Close()
	p.Close()
	if v := g(&engine.Context{}).At(0); v != 0 {
		t.Fatalf("closed patch produced %v", v)
	}
}

// TestReloadThroughEngine drives a real engine: a phasor is replaced by a
// different body and the new body continues from the stored phase.
func TestReloadThroughEngine(t *testing.T) {
	e, err := engine.New(engine.Config{SampleRate: 1000, Channels: 1, RingFrames: 256, BatchFrames: 50, Logger: discard()})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	set := NewSet(e, 0, discard())

	if _, err := set.LoadSource("osc.lua", `
signal("osc", function(ctx, s)
	s[1] = s[1] + 1
	return 0
end)`); err != nil {
		t.Fatalf("load v1: %v", err)
	}
	e.Tick()

	if _, err := set.LoadSource("osc.lua", `
signal("osc", function(ctx, s)
	if s[2] == 0 then s[2] = s[1] end
	s[1] = s[1] + 1
	return 0
end)`); err != nil {
		t.Fatalf("load v2: %v", err)
	}
	e.Tick()

	alloc, ok := e.Arena().Lookup("osc")
	if !ok {
		t.Fatal("osc has no slot")
	}
	cells := e.Arena().Slice(alloc)
	if cells[1] != 50 {
		t.Fatalf("v2 first saw phase %v, want 50", cells[1])
	}
	if cells[0] != 100 {
		t.Fatalf("phase = %v, want 100", cells[0])
	}
}
