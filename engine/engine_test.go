package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func sine(freq float64) Generator {
	return func(ctx *Context) Sample {
		return Mono(math.Sin(2 * math.Pi * freq * ctx.T))
	}
}

func constant(v float64) Generator {
	return func(*Context) Sample { return Mono(v) }
}

// phasor keeps its phase in state[0] and outputs it.
func phasor(freq float64) Generator {
	return func(ctx *Context) Sample {
		ctx.State[0] += freq * ctx.DT
		ctx.State[0] -= math.Floor(ctx.State[0])
		return Mono(ctx.State[0])
	}
}

// drain runs ticks until the ring holds at least frames and pulls them.
func drain(t *testing.T, e *Engine, frames int) []float32 {
	t.Helper()
	out := make([]float32, 0, frames*e.cfg.Channels)
	buf := make([]float32, 64*e.cfg.Channels)
	for len(out) < frames*e.cfg.Channels {
		e.Tick()
		n := e.Pull(buf)
		out = append(out, buf[:n*e.cfg.Channels]...)
	}
	return out[:frames*e.cfg.Channels]
}

func TestEngineSineEndToEnd(t *testing.T) {
	e := newTestEngine(t, Config{
		SampleRate:  48000,
		Channels:    1,
		RingFrames:  1024,
		BatchFrames: 128,
	})
	if _, err := e.Register("sine", sine(440)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if n := e.Prefill(); n != 768 {
		t.Fatalf("prefill wrote %d frames, want 768", n)
	}
	if n := e.Tick(); n != 128 {
		t.Fatalf("tick wrote %d frames, want 128", n)
	}
	if got := e.Ring().AvailableData(); got != 896 {
		t.Fatalf("AvailableData = %d, want 896", got)
	}

	out := make([]float32, 100)
	e.Pull(out)
	want := math.Tanh(math.Sin(2 * math.Pi * 440 * (100.0 / 48000)))
	if math.Abs(float64(out[99])-want) > 1e-6 {
		t.Fatalf("sample 100 = %v, want %v", out[99], want)
	}
}

func TestEngineReloadKeepsState(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 48000, Channels: 1, RingFrames: 2048, BatchFrames: 100})
	alloc, err := e.Register("osc", phasor(220))
	if err != nil {
		t.Fatalf("Register A: %v", err)
	}
	for range 10 {
		e.Tick()
	}
	if got := e.Stats().Frames; got != 1000 {
		t.Fatalf("generated %d frames, want 1000", got)
	}
	left := slices.Clone(e.Arena().Slice(alloc))
	if left[0] == 0 {
		t.Fatal("generator A did not advance its phase")
	}

	var seen []float64
	var once sync.Once
	b := func(ctx *Context) Sample {
		once.Do(func() { seen = slices.Clone(ctx.State) })
		return phasor(220)(ctx)
	}
	again, err := e.Register("osc", b)
	if err != nil {
		t.Fatalf("Register B: %v", err)
	}
	if again != alloc {
		t.Fatalf("slot moved on reload: %+v -> %+v", alloc, again)
	}
	e.Tick()

	if seen == nil {
		t.Fatal("generator B never ran")
	}
	if !slices.Equal(seen, left) {
		t.Fatalf("B saw state %v, want %v", seen[:2], left[:2])
	}
}

func TestEngineCrossfadeIsContinuous(t *testing.T) {
	const fade = 100
	e := newTestEngine(t, Config{
		SampleRate:   1000,
		Channels:     1,
		RingFrames:   512,
		BatchFrames:  32,
		FadeDuration: fade * time.Millisecond,
	})
	e.Register("x", constant(0.5))
	drain(t, e, 50)

	e.Register("x", constant(-0.5))
	out := drain(t, e, 3*fade)

	bound := 1.0/fade + 1e-6
	for i := 1; i < len(out); i++ {
		if d := math.Abs(float64(out[i] - out[i-1])); d > bound {
			t.Fatalf("jump of %v between samples %d and %d (bound %v)", d, i-1, i, bound)
		}
	}
	if last := float64(out[len(out)-1]); math.Abs(last-math.Tanh(-0.5)) > 1e-6 {
		t.Fatalf("settled at %v, want %v", last, math.Tanh(-0.5))
	}
	if sigs := e.Signals(); len(sigs) != 1 || sigs[0].Fading != 0 {
		t.Fatalf("signals after fade = %+v", sigs)
	}
}

func TestEngineUnregisterFadesThenDrops(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 1, RingFrames: 256, BatchFrames: 16, FadeDuration: 20 * time.Millisecond})
	alloc, _ := e.Register("x", constant(0.25))
	drain(t, e, 10)

	if err := e.Unregister("x"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := e.Unregister("x"); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("second Unregister err = %v", err)
	}
	out := drain(t, e, 60)
	if out[0] == 0 {
		t.Fatal("signal cut instead of fading")
	}
	if out[len(out)-1] != 0 {
		t.Fatalf("still sounding after fade: %v", out[len(out)-1])
	}
	if len(e.Signals()) != 0 {
		t.Fatalf("entry not dropped: %+v", e.Signals())
	}
	if got, ok := e.Arena().Lookup("x"); !ok || got != alloc {
		t.Fatal("slot released by Unregister")
	}
}

func TestEngineFaultIsolation(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 1, RingFrames: 256, BatchFrames: 16, MaxFaults: 10})
	e.Register("good", constant(0.5))
	e.Register("bad", func(*Context) Sample { panic("boom") })

	out := drain(t, e, 40)
	for i, v := range out {
		if math.Abs(float64(v)-math.Tanh(0.5)) > 1e-6 {
			t.Fatalf("sample %d = %v, faulting signal leaked into mix", i, v)
		}
	}
	st := e.Stats()
	if st.Faults != 10 || st.Dropped != 1 {
		t.Fatalf("faults %d dropped %d, want 10/1", st.Faults, st.Dropped)
	}
	for _, s := range e.Signals() {
		if s.Name == "bad" {
			t.Fatal("faulting signal still registered")
		}
	}
}

func TestEngineNonFiniteIsFault(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 2, RingFrames: 256, BatchFrames: 16, MaxFaults: -1})
	e.Register("nan", func(*Context) Sample { return Multi(math.NaN(), 0) })
	out := drain(t, e, 20)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("element %d = %v", i, v)
		}
	}
	if st := e.Stats(); st.Faults != st.Frames || st.Dropped != 0 {
		t.Fatalf("faults %d for %d frames, dropped %d", st.Faults, st.Frames, st.Dropped)
	}
}

func TestEngineChannelNormalisation(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 4, RingFrames: 64, BatchFrames: 8})
	e.Register("mono", constant(0.1))
	e.Register("stereo", func(*Context) Sample { return Multi(0.2, 0.3) })

	out := drain(t, e, 4)
	want := []float64{math.Tanh(0.3), math.Tanh(0.4), math.Tanh(0.3), math.Tanh(0.4)}
	for f := range 4 {
		for ch := range 4 {
			if got := float64(out[f*4+ch]); math.Abs(got-want[ch]) > 1e-6 {
				t.Fatalf("frame %d ch %d = %v, want %v", f, ch, got, want[ch])
			}
		}
	}
}

func TestEngineContextFields(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 100, Channels: 1, RingFrames: 64, BatchFrames: 4})
	e.SetListenerPosition(Position{X: 1, Y: 2, Z: 3})

	var got []Context
	e.Register("probe", func(ctx *Context) Sample {
		c := *ctx
		c.State = nil
		got = append(got, c)
		return Silence
	})
	e.Tick()

	if len(got) != 4 {
		t.Fatalf("generator ran %d times, want 4", len(got))
	}
	for i, c := range got {
		if c.Idx != i || c.SR != 100 || c.DT != 0.01 {
			t.Fatalf("call %d: %+v", i, c)
		}
		if math.Abs(c.T-float64(i+1)/100) > 1e-12 {
			t.Fatalf("call %d: T = %v", i, c.T)
		}
		if c.Position != (Position{1, 2, 3}) {
			t.Fatalf("call %d: position %+v", i, c.Position)
		}
	}
}

func TestEngineClear(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 1, RingFrames: 128, BatchFrames: 16})
	alloc, _ := e.Register("osc", phasor(10))
	e.Tick()

	e.Clear(false)
	if len(e.Signals()) != 0 {
		t.Fatal("Clear(false) kept signals")
	}
	if got, ok := e.Arena().Lookup("osc"); !ok || got != alloc {
		t.Fatal("Clear(false) released the slot")
	}
	if e.Arena().Slice(alloc)[0] == 0 {
		t.Fatal("Clear(false) zeroed state")
	}

	e.Clear(true)
	if e.Arena().Used() != 0 || e.Arena().Slice(alloc)[0] != 0 {
		t.Fatal("Clear(true) kept arena contents")
	}
	if e.Stats().Time != 0 {
		t.Fatalf("clock = %v after full reset", e.Stats().Time)
	}
}

func TestEngineRegisterErrors(t *testing.T) {
	e := newTestEngine(t, Config{ArenaCells: 8, SlotSize: 4})
	if _, err := e.Register("", constant(0)); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("empty name err = %v", err)
	}
	if _, err := e.Register("x", nil); !errors.Is(err, ErrNilGenerator) {
		t.Fatalf("nil generator err = %v", err)
	}
	e.Register("a", constant(0))
	e.Register("b", constant(0))
	if _, err := e.Register("c", constant(0)); !errors.Is(err, ErrArenaFull) {
		t.Fatalf("exhaustion err = %v", err)
	}
	if len(e.Signals()) != 2 {
		t.Fatalf("failed registration left an entry: %+v", e.Signals())
	}
	if err := e.SetVolume("c", 1); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("SetVolume err = %v", err)
	}
}

func TestEngineSetVolumeRamps(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 1000, Channels: 1, RingFrames: 256, BatchFrames: 16, FadeDuration: 10 * time.Millisecond})
	e.Register("x", constant(0.5))
	drain(t, e, 8)
	if err := e.SetVolume("x", 0); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	out := drain(t, e, 40)
	if out[0] == 0 {
		t.Fatal("volume change was not ramped")
	}
	if out[len(out)-1] != 0 {
		t.Fatalf("volume did not reach zero: %v", out[len(out)-1])
	}
}

func TestEngineUnderrunCounted(t *testing.T) {
	e := newTestEngine(t, Config{Channels: 2})
	buf := []float32{1, 1, 1, 1}
	if n := e.Pull(buf); n != 0 {
		t.Fatalf("pulled %d frames from empty engine", n)
	}
	for _, v := range buf {
		if v != 0 {
			t.Fatalf("buf = %v, want silence", buf)
		}
	}
	st := e.Stats()
	if st.Underruns != 1 || st.MissingFrames != 2 {
		t.Fatalf("underruns %d missing %d", st.Underruns, st.MissingFrames)
	}
}

func TestEngineBackPressure(t *testing.T) {
	e := newTestEngine(t, Config{Channels: 1, RingFrames: 64, BatchFrames: 32})
	e.Register("x", constant(0.1))
	e.Tick()
	e.Tick()
	if n := e.Tick(); n != 0 {
		t.Fatalf("tick into full ring wrote %d frames", n)
	}
	if e.Stats().Overruns == 0 {
		t.Fatal("full ring not counted as overrun")
	}
}

type fakeOutput struct {
	mu      sync.Mutex
	started int
	stopped int
	err     error
}

func (o *fakeOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
	return o.err
}

func (o *fakeOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped++
	return nil
}

func TestEngineStartStopKeepsState(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 48000, Channels: 1, RingFrames: 1024, TickPeriod: time.Millisecond})
	out := &fakeOutput{}
	e.SetOutput(out)
	alloc, _ := e.Register("osc", phasor(100))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Start err = %v", err)
	}
	if !e.Running() || out.started != 1 {
		t.Fatalf("running %v, output started %d", e.Running(), out.started)
	}
	time.Sleep(5 * time.Millisecond)

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Running() || out.stopped != 1 {
		t.Fatalf("running %v, output stopped %d", e.Running(), out.stopped)
	}
	if e.Ring().AvailableData() != 0 {
		t.Fatal("ring not flushed on stop")
	}
	phase := e.Arena().Slice(alloc)[0]
	if phase == 0 {
		t.Fatal("producer never ran")
	}
	if len(e.Signals()) != 1 {
		t.Fatal("signals lost on stop")
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop()
	if e.Stats().Frames == 0 {
		t.Fatal("no frames after restart")
	}
}

func TestEngineStartOutputFailure(t *testing.T) {
	e := newTestEngine(t, Config{})
	e.SetOutput(&fakeOutput{err: errors.New("no device")})
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with failing output")
	}
	if e.Running() {
		t.Fatal("engine left running after output failure")
	}
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, Config{TickPeriod: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigValidation(t *testing.T) {
	bad := []Config{
		{SampleRate: -1},
		{Channels: -2},
		{RingFrames: 1},
		{ArenaCells: 2, SlotSize: 4},
		{PrefillFraction: 1.5},
		{LowWater: -0.1},
		{BatchFrames: -1},
	}
	for i, cfg := range bad {
		cfg.Logger = slog.New(slog.DiscardHandler)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: err = %v, want ErrInvalidConfig", i, err)
		}
	}
}

// TestEngineConcurrentControl registers, replaces and removes signals while
// the producer runs and a consumer pulls. The race detector is the oracle.
func TestEngineConcurrentControl(t *testing.T) {
	e := newTestEngine(t, Config{Channels: 2, TickPeriod: time.Millisecond})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Go(func() {
		buf := make([]float32, 256)
		for {
			select {
			case <-stop:
				return
			default:
			}
			e.Pull(buf)
			time.Sleep(100 * time.Microsecond)
		}
	})

	names := []string{"a", "b", "c"}
	for i := range 200 {
		name := names[i%len(names)]
		e.Register(name, phasor(float64(100+i)))
		if i%7 == 0 {
			e.Unregister(name)
		}
		e.SetListenerPosition(Position{X: float64(i)})
		e.Stats()
	}
	close(stop)
	wg.Wait()
}
