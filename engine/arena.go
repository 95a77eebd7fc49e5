// arena.go - Persistent per-signal state memory

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
	"hash/fnv"
	"log/slog"
	"sync"
)

// AllocStatus tells a caller whether a slot is exclusively owned.
type AllocStatus int

const (
	Allocated AllocStatus = iota // slot owned by this name alone
	Degraded                     // slot shared with another name, arena exhausted
)

func (s AllocStatus) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Degraded:
		return "degraded"
	}
	return fmt.Sprintf("AllocStatus(%d)", int(s))
}

// Allocation locates a signal's state inside the arena.
type Allocation struct {
	Slot   int // slot index
	Offset int // first cell, Slot*SlotSize
	Status AllocStatus
}

// Arena is a fixed block of float64 cells split into equal slots. A name
// keeps its slot until Reset, so a signal's variables never move while its
// code is replaced.
//
// The offset map is guarded by mu. Cell contents are written only by the
// generator owning the slot, on the producer goroutine.
type Arena struct {
	mu       sync.Mutex
	data     []float64
	slotSize int
	owners   []string // slot -> owning name, "" when free
	offsets  map[string]Allocation
	shared   map[string]Allocation // degraded assignments
	degraded bool
	log      *slog.Logger
}

// NewArena allocates capacity cells divided into slots of slotSize cells.
// Trailing cells that do not fill a whole slot are unused.
func NewArena(capacity, slotSize int, allowDegraded bool, logger *slog.Logger) (*Arena, error) {
	if slotSize <= 0 || capacity < slotSize {
		return nil, fmt.Errorf("%w: arena capacity %d, slot size %d", ErrInvalidConfig, capacity, slotSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	slots := capacity / slotSize
	return &Arena{
		data:     make([]float64, slots*slotSize),
		slotSize: slotSize,
		owners:   make([]string, slots),
		offsets:  make(map[string]Allocation),
		shared:   make(map[string]Allocation),
		degraded: allowDegraded,
		log:      logger.With("component", "arena"),
	}, nil
}

// Allocate returns the slot for name, assigning one on first use. The
// candidate slot is FNV-1a(name) mod slots, probed linearly past slots owned
// by other names.
func (a *Arena) Allocate(name string) (Allocation, error) {
	if name == "" {
		return Allocation{}, ErrInvalidName
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if alloc, ok := a.offsets[name]; ok {
		return alloc, nil
	}
	if alloc, ok := a.shared[name]; ok {
		return alloc, nil
	}

	slots := len(a.owners)
	home := hashSlot(name, slots)
	for i := range slots {
		slot := (home + i) % slots
		if a.owners[slot] != "" {
			continue
		}
		a.owners[slot] = name
		alloc := Allocation{Slot: slot, Offset: slot * a.slotSize, Status: Allocated}
		a.offsets[name] = alloc
		return alloc, nil
	}

	if !a.degraded {
		return Allocation{}, fmt.Errorf("%w: no slot for %q (%d slots in use)", ErrArenaFull, name, slots)
	}
	alloc := Allocation{Slot: home, Offset: home * a.slotSize, Status: Degraded}
	a.shared[name] = alloc
	a.log.Warn("arena exhausted, sharing state slot",
		"signal", name, "slot", home, "owner", a.owners[home])
	return alloc, nil
}

// Lookup reports the allocation for name without assigning one.
func (a *Arena) Lookup(name string) (Allocation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alloc, ok := a.offsets[name]; ok {
		return alloc, true
	}
	alloc, ok := a.shared[name]
	return alloc, ok
}

// Slice returns the cells of alloc. The capacity is capped at the slot end so
// an append can never reach the neighbouring slot.
func (a *Arena) Slice(alloc Allocation) []float64 {
	end := alloc.Offset + a.slotSize
	return a.data[alloc.Offset:end:end]
}

// Reset forgets every assignment and zeroes all cells. It is the only way a
// slot is released. Callers must ensure no generator is running.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.offsets)
	clear(a.shared)
	clear(a.owners)
	clear(a.data)
}

// Used returns the number of exclusively owned slots.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.offsets)
}

func (a *Arena) Slots() int    { return len(a.owners) }
func (a *Arena) SlotSize() int { return a.slotSize }
func (a *Arena) Len() int      { return len(a.data) }

func hashSlot(name string, slots int) int {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int(h.Sum64() % uint64(slots))
}
