// set.go - Loaded patch files and reload bookkeeping

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

package patch

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

var ErrNotLoaded = errors.New("patch not loaded")

// Registrar is the part of an engine a Set drives. *engine.Engine
// satisfies it.
type Registrar interface {
	Register(name string, gen engine.Generator) (engine.Allocation, error)
	Unregister(name string) error
}

// Result describes one load.
type Result struct {
	Path       string
	Registered []string
	Removed    []string
}

// FileInfo describes one loaded file.
type FileInfo struct {
	Path     string
	Signals  []string
	Loaded   time.Time
	Modified time.Time
}

type loaded struct {
	patch    *Patch
	signals  []string // names this file currently owns
	loadedAt time.Time
	modTime  time.Time
}

// Set tracks which file defined which signal. Reloading a file registers
// everything it defines and fades out what its previous version defined
// but the new one no longer does. A signal belongs to the file that
// registered it last.
type Set struct {
	reg    Registrar
	linger time.Duration
	log    *slog.Logger

	mu    sync.Mutex
	files map[string]*loaded
	owner map[string]string // signal -> path
}

// NewSet returns an empty set. Replaced patches are closed after linger,
// which should cover the engine's crossfade.
func NewSet(reg Registrar, linger time.Duration, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		reg:    reg,
		linger: linger,
		log:    logger.With("component", "patches"),
		files:  make(map[string]*loaded),
		owner:  make(map[string]string),
	}
}

// Load reads, compiles and applies the file at path. A file that fails to
// compile leaves the previous version playing.
func (s *Set) Load(path string) (Result, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	p, err := Load(path)
	if err != nil {
		s.log.Error("patch compile failed", "path", path, "err", err)
		return Result{}, err
	}
	return s.apply(p, st.ModTime())
}

// LoadSource applies src as the contents of path without touching the
// filesystem. Such entries are never picked up by Watch.
func (s *Set) LoadSource(path, src string) (Result, error) {
	p, err := Compile(path, src)
	if err != nil {
		s.log.Error("patch compile failed", "path", path, "err", err)
		return Result{}, err
	}
	return s.apply(p, time.Time{})
}

func (s *Set) apply(p *Patch, modTime time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Path: p.Path}
	var errs []error
	next := &loaded{patch: p, loadedAt: time.Now(), modTime: modTime}
	for _, name := range p.Names() {
		gen, _ := p.Generator(name)
		if _, err := s.reg.Register(name, gen); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if prev, ok := s.owner[name]; ok && prev != p.Path {
			s.disown(prev, name)
		}
		s.owner[name] = p.Path
		next.signals = append(next.signals, name)
		res.Registered = append(res.Registered, name)
	}

	if old, ok := s.files[p.Path]; ok {
		for _, name := range old.signals {
			if slices.Contains(next.signals, name) {
				continue
			}
			if s.owner[name] == p.Path {
				delete(s.owner, name)
			}
			if err := s.reg.Unregister(name); err != nil && !errors.Is(err, engine.ErrUnknownSignal) {
				errs = append(errs, err)
			}
			res.Removed = append(res.Removed, name)
		}
		s.retire(old.patch)
	}
	s.files[p.Path] = next

	s.log.Info("patch loaded", "path", p.Path,
		"signals", len(res.Registered), "removed", len(res.Removed))
	return res, errors.Join(errs...)
}

// disown removes name from the signal list of the file at path. Caller
// holds s.mu.
func (s *Set) disown(path, name string) {
	if f, ok := s.files[path]; ok {
		f.signals = slices.DeleteFunc(f.signals, func(n string) bool { return n == name })
	}
}

// retire closes p once its voices have faded.
func (s *Set) retire(p *Patch) {
	if s.linger <= 0 {
		p.Close()
		return
	}
	time.AfterFunc(s.linger, p.Close)
}

// Unload fades out every signal the file at path owns.
func (s *Set) Unload(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, path)
	}
	var errs []error
	for _, name := range f.signals {
		delete(s.owner, name)
		if err := s.reg.Unregister(name); err != nil && !errors.Is(err, engine.ErrUnknownSignal) {
			errs = append(errs, err)
		}
	}
	delete(s.files, path)
	s.retire(f.patch)
	s.log.Info("patch unloaded", "path", path, "signals", len(f.signals))
	return f.signals, errors.Join(errs...)
}

// Forget drops every file without touching the engine. It is used after
// the engine itself has been cleared.
func (s *Set) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, f := range s.files {
		s.retire(f.patch)
		delete(s.files, path)
	}
	clear(s.owner)
}

// Owner reports which file defined name.
func (s *Set) Owner(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.owner[name]
	return path, ok
}

// Files lists loaded files sorted by path.
func (s *Set) Files() []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileInfo, 0, len(s.files))
	for path, f := range s.files {
		out = append(out, FileInfo{
			Path:     path,
			Signals:  slices.Clone(f.signals),
			Loaded:   f.loadedAt,
			Modified: f.modTime,
		})
	}
	slices.SortFunc(out, func(a, b FileInfo) int { return cmp.Compare(a.Path, b.Path) })
	return out
}
