// conductor.go - Crossfaded replacement and removal of signals

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

package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
)

// conductor owns the registry and evaluates every voice once per sample.
// Gains move linearly by step per sample, so an envelope never jumps by more
// than step between consecutive samples, including when a fade is
// interrupted by another replacement.
type conductor struct {
	reg       *registry
	step      float64 // 1 / fade length in samples
	maxFaults int     // <= 0 disables auto-removal
	log       *slog.Logger

	faults  *atomic.Uint64
	dropped *atomic.Uint64
}

func newConductor(fadeSamples, maxFaults int, faults, dropped *atomic.Uint64, logger *slog.Logger) *conductor {
	return &conductor{
		reg:       newRegistry(),
		step:      1 / float64(max(fadeSamples, 1)),
		maxFaults: maxFaults,
		log:       logger.With("component", "conductor"),
		faults:    faults,
		dropped:   dropped,
	}
}

// set installs gen as the active voice of name. A brand new name plays at
// full gain immediately. Replacing a live voice crossfades: the old voice
// keeps running on a private copy of the state while it fades out, and the
// new voice fades in on the arena view, starting from exactly the values
// the old voice left there.
func (c *conductor) set(name string, gen Generator, alloc Allocation, state []float64) {
	e := c.reg.get(name)
	if e == nil {
		e = &entry{
			name:         name,
			alloc:        alloc,
			state:        state,
			volume:       1,
			targetVolume: 1,
		}
		c.reg.add(e)
		e.active = &voice{gen: gen, state: state, gain: 1, target: 1}
		return
	}

	c.retire(e)
	e.active = &voice{gen: gen, state: e.state, gain: 0, target: 1}
}

// remove fades the active voice of name out. The entry disappears once the
// last voice reaches zero gain.
func (c *conductor) remove(name string) error {
	e := c.reg.get(name)
	if e == nil || e.active == nil {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	c.retire(e)
	return nil
}

// retire moves the active voice to the fading set.
func (c *conductor) retire(e *entry) {
	v := e.active
	if v == nil {
		return
	}
	e.active = nil
	if v.dead || v.gain == 0 {
		return
	}
	v.state = slices.Clone(v.state)
	v.target = 0
	e.fading = append(e.fading, v)
}

func (c *conductor) setVolume(name string, volume float64) error {
	e := c.reg.get(name)
	if e == nil || e.active == nil {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	e.targetVolume = max(volume, 0)
	return nil
}

// clear drops every entry without fading.
func (c *conductor) clear() {
	c.reg.reset()
}

// mix evaluates all voices for one sample and adds their scaled output to
// frame. ctx carries the timing fields; State is set per voice.
func (c *conductor) mix(ctx *Context, frame []float64) {
	var idle []*entry
	for _, e := range c.reg.order {
		e.volume = approach(e.volume, e.targetVolume, c.step)

		if len(e.fading) > 0 {
			live := e.fading[:0]
			for _, v := range e.fading {
				c.play(e, v, ctx, frame)
				if !v.dead && (v.gain > 0 || v.target > 0) {
					live = append(live, v)
				}
			}
			clear(e.fading[len(live):])
			e.fading = live
		}

		if v := e.active; v != nil {
			c.play(e, v, ctx, frame)
			if v.dead {
				e.active = nil
			}
		}

		if e.idle() {
			idle = append(idle, e)
		}
	}
	for _, e := range idle {
		c.reg.delete(e)
	}
}

// play runs one voice for one sample and advances its gain.
func (c *conductor) play(e *entry, v *voice, ctx *Context, frame []float64) {
	ctx.State = v.state
	s, ok := call(v.gen, ctx)
	if ok && s.finite() {
		s.mixInto(frame, v.gain*e.volume)
	} else {
		c.fault(e, v)
	}
	v.gain = approach(v.gain, v.target, c.step)
}

func (c *conductor) fault(e *entry, v *voice) {
	v.faults++
	c.faults.Add(1)
	if v.faults == 1 {
		c.log.Warn("generator fault, substituting silence", "signal", e.name)
	}
	if c.maxFaults > 0 && v.faults >= c.maxFaults {
		v.dead = true
		c.dropped.Add(1)
		c.log.Error("generator removed after repeated faults", "signal", e.name, "faults", v.faults)
	}
}

// call invokes gen, turning a panic into ok == false.
func call(gen Generator, ctx *Context) (s Sample, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = Silence, false
		}
	}()
	return gen(ctx), true
}

// approach moves v toward target by at most step.
func approach(v, target, step float64) float64 {
	switch {
	case v < target:
		return min(v+step, target)
	case v > target:
		return max(v-step, target)
	}
	return v
}
