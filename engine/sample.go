// sample.go - Generator output variant, per-sample context and frame normalisation

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

import "math"

// Position is the listener position passed through to every generator.
type Position struct {
	X, Y, Z float64
}

// Context is handed to a Generator once per sample. The producer reuses a
// single Context for the whole batch; generators must not retain it.
type Context struct {
	T        float64   // absolute time in seconds
	DT       float64   // 1 / SR
	Idx      int       // sample index within the current batch
	SR       float64   // sample rate in Hz
	Position Position  // listener position
	State    []float64 // this signal's private arena view
}

// Generator produces one sample per call.
type Generator func(ctx *Context) Sample

// Sample is either a single mono value or a fixed-length channel vector.
type Sample struct {
	mono  float64
	multi []float64
}

// Mono wraps a scalar output. It is upmixed to every engine channel.
func Mono(v float64) Sample {
	return Sample{mono: v}
}

// Multi wraps a per-channel output. The slice is read during mixing only,
// so generators may reuse the same backing array across calls.
func Multi(v ...float64) Sample {
	if len(v) == 0 {
		return Sample{}
	}
	return Sample{multi: v}
}

// Silence is the zero Sample.
var Silence = Sample{}

func (s Sample) IsMulti() bool { return s.multi != nil }

// Channels returns 1 for mono samples, otherwise the vector length.
func (s Sample) Channels() int {
	if s.multi == nil {
		return 1
	}
	return len(s.multi)
}

// At returns the value for output channel ch after normalisation to an
// engine frame. Vectors shorter than the frame repeat cyclically (stereo on
// a 4 channel device becomes L R L R), extra vector channels are dropped.
func (s Sample) At(ch int) float64 {
	if s.multi == nil {
		return s.mono
	}
	return s.multi[ch%len(s.multi)]
}

func (s Sample) finite() bool {
	if s.multi == nil {
		return !math.IsNaN(s.mono) && !math.IsInf(s.mono, 0)
	}
	for _, v := range s.multi {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// mixInto adds gain*s into frame, normalised to len(frame) channels.
func (s Sample) mixInto(frame []float64, gain float64) {
	if s.multi == nil {
		v := s.mono * gain
		for ch := range frame {
			frame[ch] += v
		}
		return
	}
	n := len(s.multi)
	for ch := range frame {
		frame[ch] += s.multi[ch%n] * gain
	}
}

// softLimit is the bounded, monotonic saturator applied to every mixed frame.
func softLimit(v float64) float64 {
	return math.Tanh(v)
}
