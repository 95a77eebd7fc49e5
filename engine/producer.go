// producer.go - Sample generation into the ring buffer

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
	"log/slog"
	"sync/atomic"
	"time"
)

const warnInterval = time.Second

// producer generates frames on the producer goroutine. Everything except
// the ring and the counters is touched only while Engine.mu is held.
type producer struct {
	ring     *Ring
	cond     *conductor
	position *atomic.Pointer[Position]

	sr       float64
	channels int
	batch    int
	lowWater int

	clock uint64 // samples generated since the last full reset
	ctx   Context
	frame []float64
	chunk []float32

	frames    *atomic.Uint64
	overruns  *atomic.Uint64
	underruns *atomic.Uint64 // incremented by the consumer
	missing   *atomic.Uint64

	log          *slog.Logger
	lastLowWater time.Time
	lastUnderrun time.Time
	seenRuns     uint64
}

// generate renders n frames into p.chunk and returns them.
func (p *producer) generate(n int) []float32 {
	out := p.chunk[:n*p.channels]
	pos := p.position.Load()
	p.ctx.SR = p.sr
	p.ctx.DT = 1 / p.sr
	if pos != nil {
		p.ctx.Position = *pos
	}

	for i := range n {
		p.clock++
		p.ctx.T = float64(p.clock) / p.sr
		p.ctx.Idx = i
		clear(p.frame)
		p.cond.mix(&p.ctx, p.frame)
		base := i * p.channels
		for ch, v := range p.frame {
			out[base+ch] = float32(softLimit(v))
		}
	}
	p.ctx.State = nil
	return out
}

// fill generates up to n frames, bounded by the batch size and the free
// space, and writes them. It returns the number of frames written.
func (p *producer) fill(n int) int {
	n = min(n, p.batch, p.ring.AvailableSpace())
	if n <= 0 {
		return 0
	}
	if !p.ring.Write(p.generate(n)) {
		// Space only grows between our check and the write; a failure here
		// means the consumer side was reset underneath us.
		p.overruns.Add(1)
		return 0
	}
	p.frames.Add(uint64(n))
	return n
}

// prefill fills the ring to target frames.
func (p *producer) prefill(target int) int {
	target = min(target, p.ring.Capacity()-1)
	total := 0
	for p.ring.AvailableData() < target {
		n := p.fill(target - p.ring.AvailableData())
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

// tick is one steady-state step. A full ring is back-pressure: nothing is
// generated and the work is picked up on the next tick.
func (p *producer) tick() int {
	if p.ring.AvailableSpace() == 0 {
		p.overruns.Add(1)
		return 0
	}
	return p.fill(p.batch)
}

// report logs buffer health, at most once per warnInterval for each kind
// of warning.
func (p *producer) report(now time.Time) {
	runs := p.underruns.Load()
	if runs > p.seenRuns && now.Sub(p.lastUnderrun) >= warnInterval {
		p.log.Warn("buffer underrun, output padded with silence",
			"events", runs-p.seenRuns, "missing_frames", p.missing.Load())
		p.seenRuns = runs
		p.lastUnderrun = now
	}
	if avail := p.ring.AvailableData(); avail < p.lowWater && now.Sub(p.lastLowWater) >= warnInterval {
		p.log.Warn("buffer below low water mark", "buffered", avail, "low_water", p.lowWater)
		p.lastLowWater = now
	}
}
