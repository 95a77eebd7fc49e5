// registry.go - Live signal table

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

import "slices"

// voice is one generator instance with its fade envelope. A signal has at
// most one active voice plus any number of voices fading out.
type voice struct {
	gen    Generator
	state  []float64 // arena view while active, private copy once fading
	gain   float64
	target float64
	faults int
	dead   bool
}

// entry is the registry record for one signal name.
type entry struct {
	name         string
	alloc        Allocation
	state        []float64 // arena view, stable for the entry's lifetime
	volume       float64
	targetVolume float64
	active       *voice
	fading       []*voice
}

func (e *entry) idle() bool {
	return e.active == nil && len(e.fading) == 0
}

// registry maps names to entries and keeps registration order so mixing
// is deterministic. It is not synchronised; Engine serialises access.
type registry struct {
	entries map[string]*entry
	order   []*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(name string) *entry {
	return r.entries[name]
}

func (r *registry) add(e *entry) {
	r.entries[e.name] = e
	r.order = append(r.order, e)
}

func (r *registry) delete(e *entry) {
	delete(r.entries, e.name)
	if i := slices.Index(r.order, e); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *registry) reset() {
	clear(r.entries)
	clear(r.order)
	r.order = r.order[:0]
}

func (r *registry) len() int { return len(r.entries) }

// SignalInfo is a snapshot of one registry entry.
type SignalInfo struct {
	Name   string
	Slot   int
	Offset int
	Status AllocStatus
	Volume float64 // user playback volume
	Gain   float64 // fade gain of the active voice, 0 while removing
	Fading int     // voices still fading out
	Faults int     // faults of the active voice
}

func (r *registry) snapshot() []SignalInfo {
	out := make([]SignalInfo, 0, len(r.order))
	for _, e := range r.order {
		info := SignalInfo{
			Name:   e.name,
			Slot:   e.alloc.Slot,
			Offset: e.alloc.Offset,
			Status: e.alloc.Status,
			Volume: e.targetVolume,
			Fading: len(e.fading),
		}
		if e.active != nil {
			info.Gain = e.active.gain
			info.Faults = e.active.faults
		}
		out = append(out, info)
	}
	return out
}
