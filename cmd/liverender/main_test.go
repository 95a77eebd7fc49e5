package main

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestRenderSineToWav(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sine.lua")
	if err := os.WriteFile(src, []byte(`
signal("sine", function(ctx, s)
	s[1] = (s[1] + 441 * ctx.dt) % 1
	return 0.5 * math.sin(tau * s[1])
end)`), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := newRenderer(44100, 2, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("newRenderer: %v", err)
	}
	if _, err := r.patches.Load(src); err != nil {
		t.Fatalf("Load: %v", err)
	}
	samples := r.render(4410)
	if len(samples) != 4410*2 {
		t.Fatalf("rendered %d samples", len(samples))
	}
	if st := r.eng.Stats(); st.Underruns != 0 || st.Faults != 0 {
		t.Fatalf("underruns %d faults %d", st.Underruns, st.Faults)
	}
	peak := 0.0
	for i := 0; i < len(samples); i += 2 {
		if samples[i] != samples[i+1] {
			t.Fatalf("frame %d: mono signal differs across channels", i/2)
		}
		peak = max(peak, math.Abs(float64(samples[i])))
	}
	if want := math.Tanh(0.5); math.Abs(peak-want) > 0.01 {
		t.Fatalf("peak %v, want about %v", peak, want)
	}

	out := filepath.Join(dir, "sine.wav")
	if err := writeWav(out, 44100, 2, samples); err != nil {
		t.Fatalf("writeWav: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 44100 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("format %d Hz %d ch %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
}
