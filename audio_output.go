// audio_output.go - Audio device selection and the null output

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
	"fmt"
	"slices"
	"sync"
	"time"
	"unsafe"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

const (
	AUDIO_BACKEND_OTO       = "oto"
	AUDIO_BACKEND_EBITEN    = "ebiten"
	AUDIO_BACKEND_ALSA      = "alsa"
	AUDIO_BACKEND_PORTAUDIO = "portaudio"
	AUDIO_BACKEND_NULL      = "null"
)

// defaultBackend is replaced by the init of the preferred compiled-in device.
var defaultBackend = AUDIO_BACKEND_NULL

// FrameSource is the pull side of the engine. Pull never blocks and pads
// missing frames with silence.
type FrameSource interface {
	Pull(dst []float32) int
}

type AudioSettings struct {
	SampleRate   int
	Channels     int
	DeviceBuffer time.Duration
}

// bufferFrames converts DeviceBuffer to frames, at least 64.
func (s AudioSettings) bufferFrames() int {
	return max(int(s.DeviceBuffer.Seconds()*float64(s.SampleRate)), 64)
}

type backendFactory func(src FrameSource, s AudioSettings) (engine.Output, error)

var audioBackends = map[string]backendFactory{
	AUDIO_BACKEND_NULL: func(src FrameSource, s AudioSettings) (engine.Output, error) {
		return NewNullOutput(src, s), nil
	},
}

func registerAudioBackend(name string, f backendFactory) {
	audioBackends[name] = f
	compiledFeatures = append(compiledFeatures, "audio:"+name)
}

func audioBackendNames() []string {
	names := make([]string, 0, len(audioBackends))
	for n := range audioBackends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NewAudioOutput opens the named backend. The returned output pulls from
// src once started.
func NewAudioOutput(name string, src FrameSource, s AudioSettings) (engine.Output, error) {
	f, ok := audioBackends[name]
	if !ok {
		return nil, fmt.Errorf("audio backend %q not available (have %v)", name, audioBackendNames())
	}
	return f(src, s)
}

// floatReader presents a FrameSource as a stream of little-endian float32
// bytes, the format oto and ebiten pull.
type floatReader struct {
	src      FrameSource
	channels int
	buf      []float32 // pre-allocated, grown only if the device asks for more
}

func newFloatReader(src FrameSource, channels, frames int) *floatReader {
	return &floatReader{src: src, channels: channels, buf: make([]float32, frames*channels)}
}

func (r *floatReader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		clear(p)
		return len(p), nil
	}
	n := frames * r.channels
	if len(r.buf) < n {
		r.buf = make([]float32, n)
	}
	samples := r.buf[:n]
	r.src.Pull(samples)
	copy(p, unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), n*4))
	clear(p[frames*frameBytes:])
	return len(p), nil
}

// NullOutput drains the engine in real time without a device. It keeps
// the producer paced when no audio hardware is available.
type NullOutput struct {
	src    FrameSource
	period time.Duration
	buf    []float32

	mutex   sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewNullOutput(src FrameSource, s AudioSettings) *NullOutput {
	frames := s.bufferFrames()
	return &NullOutput{
		src:    src,
		period: time.Duration(float64(frames) / float64(s.SampleRate) * float64(time.Second)),
		buf:    make([]float32, frames*s.Channels),
	}
}

func (o *NullOutput) Start() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.started {
		return nil
	}
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	o.started = true
	go o.run(o.stop, o.done)
	return nil
}

func (o *NullOutput) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.src.Pull(o.buf)
		}
	}
}

func (o *NullOutput) Stop() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if !o.started {
		return nil
	}
	close(o.stop)
	<-o.done
	o.started = false
	return nil
}

func (o *NullOutput) IsStarted() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.started
}
