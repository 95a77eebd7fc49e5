package main

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/intuitionamiga/IntuitionLive/engine"
	"github.com/intuitionamiga/IntuitionLive/patch"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	eng, err := engine.New(engine.Config{SampleRate: 1000, Channels: 2, RingFrames: 256, BatchFrames: 32, Logger: logger})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewRuntime(eng, patch.NewSet(eng, 0, logger), AUDIO_BACKEND_NULL, logger)
}

func writePatch(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func signalNames(rt *Runtime) []string {
	var names []string
	for _, s := range rt.Status().Signals {
		names = append(names, s.Name)
	}
	return names
}

func TestRuntimeLoadAndUnload(t *testing.T) {
	rt := newTestRuntime(t)
	path := writePatch(t, t.TempDir(), "duo.lua", `
signal("left", function() return {0.1, 0} end)
signal("right", function() return {0, 0.1} end)`)

	out, err := rt.ExecLine("load " + path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "left, right") {
		t.Fatalf("load output %q", out)
	}
	if got := strings.Join(signalNames(rt), ","); got != "left,right" {
		t.Fatalf("signals = %s", got)
	}
	for _, s := range rt.Status().Signals {
		if s.Owner != path {
			t.Fatalf("%s owned by %q", s.Name, s.Owner)
		}
	}

	out, err = rt.ExecLine("unload " + path)
	if err != nil || !strings.Contains(out, "left, right") {
		t.Fatalf("unload: %q %v", out, err)
	}
	if len(rt.Status().Patches) != 0 {
		t.Fatal("patch still listed after unload")
	}
}

func TestRuntimeQuotedPath(t *testing.T) {
	rt := newTestRuntime(t)
	path := writePatch(t, t.TempDir(), "my patch.lua", `signal("x", function() return 0 end)`)
	if _, err := rt.ExecLine(`load "` + path + `"`); err != nil {
		t.Fatalf("load quoted path: %v", err)
	}
}

func TestRuntimeCommands(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.ExecLine("tone 440"); err != nil {
		t.Fatalf("tone: %v", err)
	}
	if _, err := rt.ExecLine("vol tone 0.5"); err != nil {
		t.Fatalf("vol: %v", err)
	}
	if v := rt.Status().Signals[0].Volume; v != 0.5 {
		t.Fatalf("volume = %v", v)
	}
	if _, err := rt.ExecLine("pos 1 2.5 -3"); err != nil {
		t.Fatalf("pos: %v", err)
	}
	if p := rt.Status().Listener; p != (engine.Position{X: 1, Y: 2.5, Z: -3}) {
		t.Fatalf("listener = %+v", p)
	}
	out, _ := rt.ExecLine("ls")
	if !strings.Contains(out, "tone") {
		t.Fatalf("ls = %q", out)
	}
	out, _ = rt.ExecLine("stats")
	if !strings.Contains(out, "backend null") {
		t.Fatalf("stats = %q", out)
	}
	if _, err := rt.ExecLine("rm tone"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := rt.ExecLine("rm tone"); !errors.Is(err, engine.ErrUnknownSignal) {
		t.Fatalf("second rm err = %v", err)
	}
	if _, err := rt.ExecLine("clear full"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(rt.Status().Signals) != 0 {
		t.Fatal("signals survived clear")
	}
	if out, err := rt.ExecLine("   "); out != "" || err != nil {
		t.Fatalf("blank line: %q %v", out, err)
	}
}

func TestRuntimeCommandErrors(t *testing.T) {
	rt := newTestRuntime(t)
	cases := []struct {
		line string
		want error
	}{
		{"frobnicate", errUnknownCommand},
		{"vol", errUsage},
		{"pos 1 2", errUsage},
		{"clear everything", errUsage},
		{"quit", errQuit},
		{"vol missing 1", engine.ErrUnknownSignal},
		{"unload /nowhere.lua", patch.ErrNotLoaded},
	}
	for _, tc := range cases {
		if _, err := rt.ExecLine(tc.line); !errors.Is(err, tc.want) {
			t.Errorf("%q: err = %v, want %v", tc.line, err, tc.want)
		}
	}
	if _, err := rt.ExecLine("vol x loud"); err == nil {
		t.Error("non-numeric volume accepted")
	}
	if _, err := rt.ExecLine(`load "unterminated`); err == nil {
		t.Error("unbalanced quote accepted")
	}
}

func TestRuntimeHelpListsCommands(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := rt.ExecLine("help")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range commands {
		if !strings.Contains(out, c.name) {
			t.Errorf("help misses %s", c.name)
		}
	}
}

func TestConsoleRunsUntilQuit(t *testing.T) {
	rt := newTestRuntime(t)
	var out strings.Builder
	c := &Console{
		rt:  rt,
		in:  scannerLines{bufioScanner("tone 220\nbogus\nls\nquit\nclear\n")},
		out: &out,
	}
	if err := c.run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "error: unknown command") {
		t.Fatalf("console output %q", text)
	}
	if !strings.Contains(text, "tone") {
		t.Fatalf("ls output missing: %q", text)
	}
	if s := rt.Status().Signals; len(s) != 1 {
		t.Fatalf("commands after quit ran: %+v", s)
	}
}

func bufioScanner(s string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(s))
}
