// engine.go - Phase-continuous live signal engine

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

// Package engine evaluates named signal generators at sample rate, mixes
// them and streams the result through a lock-free ring buffer to an audio
// device. Generators can be replaced at any time: each name keeps a stable
// block of state memory and replacements are crossfaded, so code reloads
// neither click nor reset oscillator phase.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Output is the device side of the engine. Implementations pull frames with
// Engine.Pull from their own callback or goroutine. Start is called after
// the ring has been pre-filled, Stop before it is flushed.
type Output interface {
	Start() error
	Stop() error
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Running       bool
	SampleRate    int
	Channels      int
	Time          float64 // seconds of audio generated since the last full reset
	Frames        uint64  // frames written to the ring
	Buffered      int     // frames waiting in the ring
	Capacity      int     // usable ring frames
	Underruns     uint64  // Pull calls that came up short
	MissingFrames uint64  // frames replaced by silence
	Overruns      uint64  // ticks deferred by a full ring
	Faults        uint64  // generator samples replaced by silence
	Dropped       uint64  // voices removed after repeated faults
	Signals       int
	ArenaUsed     int
	ArenaSlots    int
}

// Engine owns the state arena, the signal registry and the ring buffer. A
// host process keeps one Engine for its whole lifetime and re-registers
// generators on every code reload.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	arena *Arena
	ring  *Ring

	mu   sync.Mutex // registry, conductor, producer state
	cond *conductor
	prod *producer

	position atomic.Pointer[Position]

	runMu  sync.Mutex
	output Output
	cancel context.CancelFunc
	done   chan struct{}

	frames, overruns, underruns, missing atomic.Uint64
	faults, dropped                      atomic.Uint64
}

// New allocates an engine. Allocation failures of the arena or the ring
// are the only fatal errors the engine reports.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("component", "engine")

	arena, err := NewArena(cfg.ArenaCells, cfg.SlotSize, cfg.AllowDegraded, cfg.Logger)
	if err != nil {
		return nil, err
	}
	ring, err := NewRing(cfg.RingFrames, cfg.Channels)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		log:   logger,
		arena: arena,
		ring:  ring,
	}
	e.position.Store(&Position{})
	e.cond = newConductor(cfg.fadeSamples(), cfg.MaxFaults, &e.faults, &e.dropped, cfg.Logger)
	e.prod = &producer{
		ring:      ring,
		cond:      e.cond,
		position:  &e.position,
		sr:        float64(cfg.SampleRate),
		channels:  cfg.Channels,
		batch:     cfg.BatchFrames,
		lowWater:  int(cfg.LowWater * float64(cfg.RingFrames)),
		frame:     make([]float64, cfg.Channels),
		chunk:     make([]float32, cfg.BatchFrames*cfg.Channels),
		frames:    &e.frames,
		overruns:  &e.overruns,
		underruns: &e.underruns,
		missing:   &e.missing,
		log:       cfg.Logger.With("component", "producer"),
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Arena() *Arena  { return e.arena }
func (e *Engine) Ring() *Ring    { return e.ring }

// Register binds gen to name. A new name gets a state slot and plays at
// once; an existing name keeps its slot and state and the new generator is
// crossfaded in over the old one.
func (e *Engine) Register(name string, gen Generator) (Allocation, error) {
	if name == "" {
		return Allocation{}, ErrInvalidName
	}
	if gen == nil {
		return Allocation{}, fmt.Errorf("%w: %q", ErrNilGenerator, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	alloc, err := e.arena.Allocate(name)
	if err != nil {
		e.log.Error("register failed", "signal", name, "err", err)
		return Allocation{}, err
	}
	e.cond.set(name, gen, alloc, e.arena.Slice(alloc))
	e.log.Debug("signal registered", "signal", name, "slot", alloc.Slot, "status", alloc.Status)
	return alloc, nil
}

// Unregister fades name out. Its arena slot stays reserved.
func (e *Engine) Unregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cond.remove(name); err != nil {
		return err
	}
	e.log.Debug("signal removed", "signal", name)
	return nil
}

// SetVolume sets the playback volume of a live signal. The change is
// ramped at the crossfade rate.
func (e *Engine) SetVolume(name string, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cond.setVolume(name, volume)
}

// Clear drops every signal immediately. With fullReset the arena is zeroed,
// all slot assignments are forgotten and the clock restarts at zero.
func (e *Engine) Clear(fullReset bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cond.clear()
	if fullReset {
		e.arena.Reset()
		e.prod.clock = 0
	}
	e.log.Info("signals cleared", "full_reset", fullReset)
}

// SetListenerPosition updates the position passed to generators from the
// next batch on.
func (e *Engine) SetListenerPosition(p Position) {
	e.position.Store(&p)
}

func (e *Engine) ListenerPosition() Position {
	return *e.position.Load()
}

// Signals lists live signals in registration order.
func (e *Engine) Signals() []SignalInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cond.reg.snapshot()
}

// Prefill synchronously fills the ring to the configured fraction of its
// capacity and returns the number of frames written.
func (e *Engine) Prefill() int {
	target := int(e.cfg.PrefillFraction * float64(e.ring.Capacity()))
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prod.prefill(target)
}

// Tick runs one producer step and returns the number of frames written.
// Start calls it on a timer; offline renderers and tests call it directly.
func (e *Engine) Tick() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.prod.tick()
	e.prod.report(time.Now())
	return n
}

// Pull is the transport pull contract: it fills dst with interleaved frames
// and substitutes silence for any shortfall. It never blocks and never
// takes a lock, so it is safe to call from an audio callback.
func (e *Engine) Pull(dst []float32) int {
	want := len(dst) / e.cfg.Channels
	n := e.ring.Read(dst)
	if n < want {
		e.underruns.Add(1)
		e.missing.Add(uint64(want - n))
	}
	return n
}

// SetOutput attaches the device that will drain the ring. It must be called
// while the engine is stopped.
func (e *Engine) SetOutput(o Output) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.output = o
}

// Start pre-fills the ring, starts the producer goroutine and then the
// output, if any.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return ErrRunning
	}

	filled := e.Prefill()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go e.loop(runCtx, done)
	e.cancel, e.done = cancel, done

	if e.output != nil {
		if err := e.output.Start(); err != nil {
			e.haltProducer()
			e.ring.Clear()
			return fmt.Errorf("start output: %w", err)
		}
	}
	e.log.Info("engine started", "prefill_frames", filled,
		"sample_rate", e.cfg.SampleRate, "channels", e.cfg.Channels)
	return nil
}

// Stop halts the producer, stops the output and flushes the ring. Arena
// contents, slot assignments, registered signals and the clock are kept, so
// a later Start resumes with continuous state.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return nil
	}
	e.haltProducer()
	var err error
	if e.output != nil {
		err = e.output.Stop()
	}
	e.ring.Clear()
	e.log.Info("engine stopped")
	return err
}

func (e *Engine) haltProducer() {
	e.cancel()
	<-e.done
	e.cancel, e.done = nil, nil
}

// Run starts the engine and blocks until ctx is done, then stops it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Stop()
}

func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}

// loop ticks the producer with a minimum gap of TickPeriod between ticks.
// It never waits on the ring; a full ring just yields until the next tick.
func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()
	for {
		e.Tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	clock := e.prod.clock
	signals := e.cond.reg.len()
	e.mu.Unlock()

	return Stats{
		Running:       e.Running(),
		SampleRate:    e.cfg.SampleRate,
		Channels:      e.cfg.Channels,
		Time:          float64(clock) / float64(e.cfg.SampleRate),
		Frames:        e.frames.Load(),
		Buffered:      e.ring.AvailableData(),
		Capacity:      e.ring.Capacity() - 1,
		Underruns:     e.underruns.Load(),
		MissingFrames: e.missing.Load(),
		Overruns:      e.overruns.Load(),
		Faults:        e.faults.Load(),
		Dropped:       e.dropped.Load(),
		Signals:       signals,
		ArenaUsed:     e.arena.Used(),
		ArenaSlots:    e.arena.Slots(),
	}
}
