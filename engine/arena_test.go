package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func newTestArena(t *testing.T, slots, slotSize int, degraded bool) *Arena {
	t.Helper()
	a, err := NewArena(slots*slotSize, slotSize, degraded, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	return a
}

func TestArenaAllocateStable(t *testing.T) {
	a := newTestArena(t, 16, 8, false)

	first, err := a.Allocate("osc")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for i := range 10 {
		if _, err := a.Allocate(fmt.Sprintf("other%d", i)); err != nil {
			t.Fatalf("Allocate other%d: %v", i, err)
		}
	}
	again, err := a.Allocate("osc")
	if err != nil {
		t.Fatalf("Allocate again: %v", err)
	}
	if again != first {
		t.Fatalf("offset moved: first %+v, again %+v", first, again)
	}
	if first.Offset != first.Slot*8 {
		t.Fatalf("offset %d does not match slot %d", first.Offset, first.Slot)
	}
}

func TestArenaNoOverlap(t *testing.T) {
	const slots, slotSize = 32, 4
	a := newTestArena(t, slots, slotSize, false)

	seen := make(map[int]string)
	for i := range slots {
		name := fmt.Sprintf("sig-%d", i)
		alloc, err := a.Allocate(name)
		if err != nil {
			t.Fatalf("Allocate %s: %v", name, err)
		}
		if alloc.Status != Allocated {
			t.Fatalf("%s: status %v, want allocated", name, alloc.Status)
		}
		for off := alloc.Offset; off < alloc.Offset+slotSize; off++ {
			if owner, ok := seen[off]; ok {
				t.Fatalf("cell %d shared by %s and %s", off, owner, name)
			}
			seen[off] = name
		}
	}
	if len(seen) != slots*slotSize {
		t.Fatalf("covered %d cells, want %d", len(seen), slots*slotSize)
	}
}

func TestArenaProbeIsDeterministic(t *testing.T) {
	names := []string{"kick", "snare", "hat", "bass", "pad", "lead", "fx"}
	a := newTestArena(t, 8, 2, false)
	b := newTestArena(t, 8, 2, false)
	for _, n := range names {
		x, _ := a.Allocate(n)
		y, _ := b.Allocate(n)
		if x != y {
			t.Fatalf("%s: %+v vs %+v", n, x, y)
		}
	}
}

func TestArenaExhaustion(t *testing.T) {
	a := newTestArena(t, 4, 2, false)
	for i := range 4 {
		if _, err := a.Allocate(fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("Allocate s%d: %v", i, err)
		}
	}
	_, err := a.Allocate("one-too-many")
	if !errors.Is(err, ErrArenaFull) {
		t.Fatalf("err = %v, want ErrArenaFull", err)
	}
	if _, ok := a.Lookup("one-too-many"); ok {
		t.Fatal("failed allocation was recorded")
	}
	if _, err := a.Allocate("s2"); err != nil {
		t.Fatalf("existing name rejected after exhaustion: %v", err)
	}
}

func TestArenaDegradedIsExplicit(t *testing.T) {
	a := newTestArena(t, 2, 2, true)
	a.Allocate("a")
	a.Allocate("b")

	alloc, err := a.Allocate("c")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.Status != Degraded {
		t.Fatalf("status = %v, want degraded", alloc.Status)
	}
	again, _ := a.Allocate("c")
	if again != alloc {
		t.Fatalf("degraded allocation not stable: %+v vs %+v", alloc, again)
	}
	if a.Used() != 2 {
		t.Fatalf("Used = %d, want 2", a.Used())
	}
}

func TestArenaResetReleasesAndZeroes(t *testing.T) {
	a := newTestArena(t, 4, 4, false)
	alloc, _ := a.Allocate("osc")
	s := a.Slice(alloc)
	for i := range s {
		s[i] = float64(i + 1)
	}

	a.Reset()

	if a.Used() != 0 {
		t.Fatalf("Used = %d after reset", a.Used())
	}
	if _, ok := a.Lookup("osc"); ok {
		t.Fatal("name survived reset")
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("cell %d = %g after reset", i, v)
		}
	}
}

func TestArenaSliceCannotGrowIntoNeighbour(t *testing.T) {
	a := newTestArena(t, 4, 4, false)
	alloc, _ := a.Allocate("osc")
	s := a.Slice(alloc)
	if len(s) != 4 || cap(s) != 4 {
		t.Fatalf("len %d cap %d, want 4/4", len(s), cap(s))
	}
	grown := append(s, 42)
	grown[0] = 7
	if s[0] == 7 {
		t.Fatal("append wrote through to the arena")
	}
}

func TestArenaRejectsEmptyName(t *testing.T) {
	a := newTestArena(t, 4, 4, false)
	if _, err := a.Allocate(""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestNewArenaValidation(t *testing.T) {
	if _, err := NewArena(3, 4, false, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	a, err := NewArena(10, 4, false, nil)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	if a.Slots() != 2 || a.Len() != 8 {
		t.Fatalf("slots %d len %d, want 2/8", a.Slots(), a.Len())
	}
}
