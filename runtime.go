// runtime.go - Live-coding commands shared by the console and IPC

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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/intuitionamiga/IntuitionLive/engine"
	"github.com/intuitionamiga/IntuitionLive/patch"
)

var (
	errQuit           = errors.New("quit")
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("usage")
)

// Runtime binds the engine to its patch files. All methods are safe for
// concurrent use by the console and IPC connections.
type Runtime struct {
	eng     *engine.Engine
	patches *patch.Set
	status  *runtimeStatusStore
	log     *slog.Logger
}

func NewRuntime(eng *engine.Engine, patches *patch.Set, backend string, logger *slog.Logger) *Runtime {
	r := &Runtime{
		eng:     eng,
		patches: patches,
		status:  &runtimeStatusStore{},
		log:     logger.With("component", "runtime"),
	}
	r.status.set(eng, patches, backend)
	return r
}

type command struct {
	name string
	args string
	help string
	min  int
	max  int // -1 for unbounded
	run  func(r *Runtime, args []string) (string, error)
}

var commands []command

func init() {
	commands = []command{
		{"load", "<file>...", "load or reload patch files", 1, -1, (*Runtime).cmdLoad},
		{"unload", "<file>", "fade out every signal a file defined", 1, 1, (*Runtime).cmdUnload},
		{"rm", "<name>", "fade out one signal", 1, 1, (*Runtime).cmdRemove},
		{"vol", "<name> <level>", "set signal volume (ramped)", 2, 2, (*Runtime).cmdVolume},
		{"pos", "<x> <y> <z>", "set listener position", 3, 3, (*Runtime).cmdPosition},
		{"tone", "<hz> [amp] | off", "built-in test tone", 1, 2, (*Runtime).cmdTone},
		{"clear", "[full]", "drop all signals, full also resets state and clock", 0, 1, (*Runtime).cmdClear},
		{"ls", "", "list signals", 0, 0, (*Runtime).cmdList},
		{"stats", "", "engine counters", 0, 0, (*Runtime).cmdStats},
		{"help", "", "this text", 0, 0, (*Runtime).cmdHelp},
		{"quit", "", "stop the engine and exit", 0, 0, (*Runtime).cmdQuit},
	}
}

// ExecLine splits line shell-style and runs it.
func (r *Runtime) ExecLine(line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	r.log.Debug("command", "args", args)
	return r.Exec(args)
}

// Exec runs one command. args[0] is the command name.
func (r *Runtime) Exec(args []string) (string, error) {
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		n := len(args) - 1
		if n < c.min || (c.max >= 0 && n > c.max) {
			return "", fmt.Errorf("%w: %s %s", errUsage, c.name, c.args)
		}
		return c.run(r, args[1:])
	}
	return "", fmt.Errorf("%w: %s (try help)", errUnknownCommand, args[0])
}

func (r *Runtime) cmdLoad(args []string) (string, error) {
	var out strings.Builder
	var errs []error
	for _, file := range args {
		path, err := filepath.Abs(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := r.patches.Load(path)
		if err != nil {
			errs = append(errs, err)
		}
		if res.Path == "" {
			continue
		}
		fmt.Fprintf(&out, "loaded %s: %s", res.Path, strings.Join(res.Registered, ", "))
		if len(res.Removed) > 0 {
			fmt.Fprintf(&out, " (removed %s)", strings.Join(res.Removed, ", "))
		}
		out.WriteByte('\n')
	}
	return out.String(), errors.Join(errs...)
}

func (r *Runtime) cmdUnload(args []string) (string, error) {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return "", err
	}
	removed, err := r.patches.Unload(path)
	if len(removed) == 0 {
		return "", err
	}
	return fmt.Sprintf("removed %s\n", strings.Join(removed, ", ")), err
}

func (r *Runtime) cmdRemove(args []string) (string, error) {
	if err := r.eng.Unregister(args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("removing %s\n", args[0]), nil
}

func (r *Runtime) cmdVolume(args []string) (string, error) {
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", fmt.Errorf("volume: %w", err)
	}
	return "", r.eng.SetVolume(args[0], v)
}

func (r *Runtime) cmdPosition(args []string) (string, error) {
	var xyz [3]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return "", fmt.Errorf("position: %w", err)
		}
		xyz[i] = v
	}
	r.eng.SetListenerPosition(engine.Position{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	return "", nil
}

func (r *Runtime) cmdTone(args []string) (string, error) {
	if args[0] == "off" {
		return "", r.eng.Unregister(toneSignal)
	}
	hz, err := strconv.ParseFloat(args[0], 64)
	if err != nil || hz <= 0 {
		return "", fmt.Errorf("tone: bad frequency %q", args[0])
	}
	amp := 0.2
	if len(args) > 1 {
		if amp, err = strconv.ParseFloat(args[1], 64); err != nil {
			return "", fmt.Errorf("tone: %w", err)
		}
	}
	return "", r.Tone(hz, amp)
}

// Tone registers the built-in sine under the name "tone".
func (r *Runtime) Tone(hz, amp float64) error {
	_, err := r.eng.Register(toneSignal, toneGenerator(hz, amp))
	return err
}

func (r *Runtime) cmdClear(args []string) (string, error) {
	full := false
	if len(args) == 1 {
		if args[0] != "full" {
			return "", fmt.Errorf("%w: clear [full]", errUsage)
		}
		full = true
	}
	r.Clear(full)
	return "", nil
}

// Clear silences everything and forgets all loaded files.
func (r *Runtime) Clear(full bool) {
	r.eng.Clear(full)
	r.patches.Forget()
}

func (r *Runtime) cmdList(args []string) (string, error) {
	snap := r.status.snapshot()
	if len(snap.Signals) == 0 {
		return "no signals\n", nil
	}
	var out strings.Builder
	for _, s := range snap.Signals {
		owner := s.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(&out, "%-16s slot %-5d %-9s vol %.2f gain %.2f fading %d faults %d  %s\n",
			s.Name, s.Slot, s.Status, s.Volume, s.Gain, s.Fading, s.Faults, filepath.Base(owner))
	}
	return out.String(), nil
}

func (r *Runtime) cmdStats(args []string) (string, error) {
	s := r.status.snapshot()
	e := s.Engine
	return fmt.Sprintf(
		"backend %s  running %v  %d Hz x%d  t=%.3fs\n"+
			"frames %d  buffer %d/%d (%.0f%%)  underruns %d (%d frames)  overruns %d\n"+
			"faults %d  dropped %d  signals %d  arena %d/%d slots  patches %d\n",
		s.Backend, e.Running, e.SampleRate, e.Channels, e.Time,
		e.Frames, e.Buffered, e.Capacity, 100*s.fill(), e.Underruns, e.MissingFrames, e.Overruns,
		e.Faults, e.Dropped, len(s.Signals), e.ArenaUsed, e.ArenaSlots, len(s.Patches)), nil
}

func (r *Runtime) cmdHelp(args []string) (string, error) {
	var out strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&out, "  %-24s %s\n", strings.TrimSpace(c.name+" "+c.args), c.help)
	}
	return out.String(), nil
}

func (r *Runtime) cmdQuit(args []string) (string, error) {
	return "", errQuit
}

// Status returns the current snapshot.
func (r *Runtime) Status() runtimeStatusSnapshot {
	return r.status.snapshot()
}
