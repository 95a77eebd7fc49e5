// runtime_status.go - Snapshot of the running engine for console and IPC

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

package main

import (
	"sync"
	"time"

	"github.com/intuitionamiga/IntuitionLive/engine"
	"github.com/intuitionamiga/IntuitionLive/patch"
)

type signalStatus struct {
	Name   string  `json:"name"`
	Owner  string  `json:"owner,omitempty"`
	Slot   int     `json:"slot"`
	Status string  `json:"status"`
	Volume float64 `json:"volume"`
	Gain   float64 `json:"gain"`
	Fading int     `json:"fading"`
	Faults int     `json:"faults"`
}

type patchStatus struct {
	Path     string    `json:"path"`
	Signals  []string  `json:"signals"`
	Loaded   time.Time `json:"loaded"`
	Modified time.Time `json:"modified,omitzero"`
}

type engineStatus struct {
	Running       bool    `json:"running"`
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	Time          float64 `json:"time"`
	Frames        uint64  `json:"frames"`
	Buffered      int     `json:"buffered"`
	Capacity      int     `json:"capacity"`
	Underruns     uint64  `json:"underruns"`
	MissingFrames uint64  `json:"missing_frames"`
	Overruns      uint64  `json:"overruns"`
	Faults        uint64  `json:"faults"`
	Dropped       uint64  `json:"dropped"`
	ArenaUsed     int     `json:"arena_used"`
	ArenaSlots    int     `json:"arena_slots"`
}

type runtimeStatusSnapshot struct {
	Version  string          `json:"version"`
	Backend  string          `json:"backend"`
	Uptime   float64         `json:"uptime"`
	Listener engine.Position `json:"listener"`
	Engine   engineStatus    `json:"engine"`
	Signals  []signalStatus  `json:"signals"`
	Patches  []patchStatus   `json:"patches"`
}

// fill returns the fraction of the ring holding frames.
func (s runtimeStatusSnapshot) fill() float64 {
	if s.Engine.Capacity == 0 {
		return 0
	}
	return float64(s.Engine.Buffered) / float64(s.Engine.Capacity)
}

type runtimeStatusStore struct {
	mu      sync.RWMutex
	eng     *engine.Engine
	patches *patch.Set
	backend string
	started time.Time
}

func (s *runtimeStatusStore) set(eng *engine.Engine, patches *patch.Set, backend string) {
	s.mu.Lock()
	s.eng = eng
	s.patches = patches
	s.backend = backend
	s.started = time.Now()
	s.mu.Unlock()
}

func (s *runtimeStatusStore) snapshot() runtimeStatusSnapshot {
	s.mu.RLock()
	eng, patches, backend, started := s.eng, s.patches, s.backend, s.started
	s.mu.RUnlock()

	snap := runtimeStatusSnapshot{Version: Version, Backend: backend}
	if eng == nil {
		return snap
	}
	snap.Uptime = time.Since(started).Seconds()
	snap.Listener = eng.ListenerPosition()

	st := eng.Stats()
	snap.Engine = engineStatus{
		Running:       st.Running,
		SampleRate:    st.SampleRate,
		Channels:      st.Channels,
		Time:          st.Time,
		Frames:        st.Frames,
		Buffered:      st.Buffered,
		Capacity:      st.Capacity,
		Underruns:     st.Underruns,
		MissingFrames: st.MissingFrames,
		Overruns:      st.Overruns,
		Faults:        st.Faults,
		Dropped:       st.Dropped,
		ArenaUsed:     st.ArenaUsed,
		ArenaSlots:    st.ArenaSlots,
	}

	for _, sig := range eng.Signals() {
		ss := signalStatus{
			Name:   sig.Name,
			Slot:   sig.Slot,
			Status: sig.Status.String(),
			Volume: sig.Volume,
			Gain:   sig.Gain,
			Fading: sig.Fading,
			Faults: sig.Faults,
		}
		if patches != nil {
			ss.Owner, _ = patches.Owner(sig.Name)
		}
		snap.Signals = append(snap.Signals, ss)
	}
	if patches != nil {
		for _, f := range patches.Files() {
			snap.Patches = append(snap.Patches, patchStatus{
				Path:     f.Path,
				Signals:  f.Signals,
				Loaded:   f.Loaded,
				Modified: f.Modified,
			})
		}
	}
	return snap
}
