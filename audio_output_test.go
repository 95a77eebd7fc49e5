package main

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

// countingSource fills every frame with its running frame index.
type countingSource struct {
	channels int
	next     atomic.Int64
}

func (s *countingSource) Pull(dst []float32) int {
	frames := len(dst) / s.channels
	for f := range frames {
		v := float32(s.next.Add(1))
		for ch := range s.channels {
			dst[f*s.channels+ch] = v
		}
	}
	return frames
}

func TestFloatReaderEncodesFrames(t *testing.T) {
	src := &countingSource{channels: 2}
	r := newFloatReader(src, 2, 4)

	p := make([]byte, 8*3+5) // three frames and a partial one
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	for i := range 6 {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if want := float32(i/2 + 1); got != want {
			t.Fatalf("sample %d = %v, want %v", i, got, want)
		}
	}
	for i := 24; i < len(p); i++ {
		if p[i] != 0 {
			t.Fatalf("partial frame byte %d = %d", i, p[i])
		}
	}

	big := make([]byte, 8*100)
	if n, _ := r.Read(big); n != len(big) || src.next.Load() != 103 {
		t.Fatalf("grown read: n %d, frames pulled %d", n, src.next.Load())
	}
}

func TestNullOutputDrains(t *testing.T) {
	src := &countingSource{channels: 1}
	o := NewNullOutput(src, AudioSettings{SampleRate: 64000, Channels: 1, DeviceBuffer: time.Millisecond})
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	if !o.IsStarted() {
		t.Fatal("not started")
	}
	deadline := time.Now().Add(2 * time.Second)
	for src.next.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("null output never pulled")
		}
		time.Sleep(time.Millisecond)
	}
	if err := o.Stop(); err != nil {
		t.Fatal(err)
	}
	pulled := src.next.Load()
	time.Sleep(10 * time.Millisecond)
	if src.next.Load() != pulled {
		t.Fatal("null output pulled after Stop")
	}
	if err := o.Stop(); err != nil {
		t.Fatal("second Stop failed")
	}
}

func TestNewAudioOutputUnknownBackend(t *testing.T) {
	if _, err := NewAudioOutput("gramophone", &countingSource{channels: 1}, AudioSettings{SampleRate: 48000, Channels: 1}); err == nil {
		t.Fatal("unknown backend accepted")
	}
	o, err := NewAudioOutput(AUDIO_BACKEND_NULL, &countingSource{channels: 1}, AudioSettings{SampleRate: 48000, Channels: 1})
	if err != nil {
		t.Fatalf("null backend: %v", err)
	}
	if _, ok := o.(*NullOutput); !ok {
		t.Fatalf("null backend returned %T", o)
	}
}
