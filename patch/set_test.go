package patch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// fakeRegistrar records calls instead of driving an engine.
type fakeRegistrar struct {
	mu      sync.Mutex
	live    map[string]engine.Generator
	removed []string
	full    bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{live: make(map[string]engine.Generator)}
}

func (r *fakeRegistrar) Register(name string, gen engine.Generator) (engine.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[name]; !ok && r.full {
		return engine.Allocation{}, engine.ErrArenaFull
	}
	r.live[name] = gen
	return engine.Allocation{}, nil
}

func (r *fakeRegistrar) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[name]; !ok {
		return engine.ErrUnknownSignal
	}
	delete(r.live, name)
	r.removed = append(r.removed, name)
	return nil
}

func (r *fakeRegistrar) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for n := range r.live {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (r *fakeRegistrar) value(name string) float64 {
	r.mu.Lock()
	g := r.live[name]
	r.mu.Unlock()
	if g == nil {
		return 0
	}
	return g(&engine.Context{State: make([]float64, 1)}).At(0)
}

const twoSignals = `
signal("a", function() return 1 end)
signal("b", function() return 2 end)`

func TestSetReloadRemovesDroppedSignals(t *testing.T) {
	reg := newFakeRegistrar()
	s := NewSet(reg, 0, discard())

	if _, err := s.LoadSource("p.lua", twoSignals); err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := s.LoadSource("p.lua", `signal("a", function() return 3 end)`)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !slices.Equal(res.Registered, []string{"a"}) || !slices.Equal(res.Removed, []string{"b"}) {
		t.Fatalf("result = %+v", res)
	}
	if got := reg.names(); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("live = %v", got)
	}
	if v := reg.value("a"); v != 3 {
		t.Fatalf("a = %v, want new body", v)
	}
}

func TestSetCompileErrorKeepsOldVersion(t *testing.T) {
	reg := newFakeRegistrar()
	s := NewSet(reg, 0, discard())
	s.LoadSource("p.lua", twoSignals)

	if _, err := s.LoadSource("p.lua", `signal("a", function(`); err == nil {
		t.Fatal("broken reload succeeded")
	}
	if got := reg.names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("live = %v", got)
	}
	if v := reg.value("b"); v != 2 {
		t.Fatalf("old patch closed by failed reload: b = %v", v)
	}
}

func TestSetOwnershipMovesBetweenFiles(t *testing.T) {
	reg := newFakeRegistrar()
	s := NewSet(reg, 0, discard())
	s.LoadSource("one.lua", twoSignals)
	s.LoadSource("two.lua", `signal("b", function() return 5 end)`)

	if owner, _ := s.Owner("b"); owner != "two.lua" {
		t.Fatalf("b owned by %q", owner)
	}
	removed, err := s.Unload("one.lua")
	if err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if !slices.Equal(removed, []string{"a"}) {
		t.Fatalf("Unload removed %v", removed)
	}
	if got := reg.names(); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("live = %v", got)
	}
	if _, err := s.Unload("one.lua"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("second Unload err = %v", err)
	}
}

func TestSetPartialRegistration(t *testing.T) {
	reg := newFakeRegistrar()
	reg.full = true
	s := NewSet(reg, 0, discard())
	res, err := s.LoadSource("p.lua", twoSignals)
	if !errors.Is(err, engine.ErrArenaFull) {
		t.Fatalf("err = %v, want ErrArenaFull", err)
	}
	if len(res.Registered) != 0 || len(s.Files()) != 1 {
		t.Fatalf("result %+v files %+v", res, s.Files())
	}
}

func TestSetForget(t *testing.T) {
	reg := newFakeRegistrar()
	s := NewSet(reg, 0, discard())
	s.LoadSource("p.lua", twoSignals)
	s.Forget()
	if len(s.Files()) != 0 {
		t.Fatal("files survived Forget")
	}
	if _, ok := s.Owner("a"); ok {
		t.Fatal("owner survived Forget")
	}
}

func TestSetLingerDelaysClose(t *testing.T) {
	reg := newFakeRegistrar()
	s := NewSet(reg, 20*time.Millisecond, discard())
	s.LoadSource("p.lua", `signal("a", function() return 1 end)`)
	old := reg.live["a"]
	s.LoadSource("p.lua", `signal("a", function() return 2 end)`)

	if v := old(&engine.Context{}).At(0); v != 1 {
		t.Fatalf("replaced patch closed early: %v", v)
	}
	deadline := time.Now().Add(2 * time.Second)
	for old(&engine.Context{}).At(0) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("replaced patch never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.lua")
	if err := os.WriteFile(path, []byte(`signal("a", function() return 1 end)`), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := newFakeRegistrar()
	s := NewSet(reg, 0, discard())
	if _, err := s.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 5*time.Millisecond) }()

	if err := os.WriteFile(path, []byte(`signal("b", function() return 2 end)`), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !slices.Equal(reg.names(), []string{"b"}) {
		if time.Now().After(deadline) {
			t.Fatalf("live = %v after edit", reg.names())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
