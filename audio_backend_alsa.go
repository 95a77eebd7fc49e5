//go:build linux && alsa && !headless

// audio_backend_alsa.go - ALSA audio output implementation

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

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>

static snd_pcm_t* openPCM(const char* device, int* err) {
    snd_pcm_t* handle;
    *err = snd_pcm_open(&handle, device, SND_PCM_STREAM_PLAYBACK, 0);
    return handle;
}

static int setupPCM(snd_pcm_t* handle, unsigned int rate, unsigned int channels, unsigned int latencyUs) {
    return snd_pcm_set_params(handle, SND_PCM_FORMAT_FLOAT, SND_PCM_ACCESS_RW_INTERLEAVED,
        channels, rate, 1, latencyUs);
}

static int writePCM(snd_pcm_t* handle, float* buffer, int frames) {
    return snd_pcm_writei(handle, buffer, frames);
}

static void closePCM(snd_pcm_t* handle) {
    if (handle != NULL) {
        snd_pcm_drop(handle);
        snd_pcm_close(handle);
    }
}
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func init() {
	registerAudioBackend(AUDIO_BACKEND_ALSA, func(src FrameSource, s AudioSettings) (engine.Output, error) {
		return NewALSAOutput(src, s)
	})
}

// ALSAOutput pushes frames with blocking writes from its own goroutine;
// the device's pace throttles the pull.
type ALSAOutput struct {
	handle   *C.snd_pcm_t
	src      FrameSource
	channels int
	samples  []float32

	mutex   sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewALSAOutput(src FrameSource, s AudioSettings) (*ALSAOutput, error) {
	device := C.CString("default")
	defer C.free(unsafe.Pointer(device))

	var err C.int
	handle := C.openPCM(device, &err)
	if err < 0 {
		return nil, fmt.Errorf("failed to open PCM device: %s", C.GoString(C.snd_strerror(err)))
	}

	latency := C.uint(s.DeviceBuffer.Microseconds())
	if err = C.setupPCM(handle, C.uint(s.SampleRate), C.uint(s.Channels), latency); err < 0 {
		C.closePCM(handle)
		return nil, fmt.Errorf("failed to setup PCM: %s", C.GoString(C.snd_strerror(err)))
	}

	return &ALSAOutput{
		handle:   handle,
		src:      src,
		channels: s.Channels,
		samples:  make([]float32, max(s.bufferFrames()/4, 64)*s.Channels),
	}, nil
}

func (ap *ALSAOutput) Start() error {
	ap.mutex.Lock()
	defer ap.mutex.Unlock()

	if ap.started {
		return nil
	}
	if err := C.snd_pcm_prepare(ap.handle); err < 0 {
		return fmt.Errorf("failed to prepare PCM: %s", C.GoString(C.snd_strerror(err)))
	}
	ap.stop = make(chan struct{})
	ap.done = make(chan struct{})
	ap.started = true
	go ap.run(ap.stop, ap.done)
	return nil
}

func (ap *ALSAOutput) run(stop, done chan struct{}) {
	defer close(done)
	frames := len(ap.samples) / ap.channels
	for {
		select {
		case <-stop:
			return
		default:
		}
		ap.src.Pull(ap.samples)
		if err := ap.write(frames); err != nil {
			return
		}
	}
}

func (ap *ALSAOutput) write(frames int) error {
	n := C.writePCM(ap.handle, (*C.float)(unsafe.Pointer(&ap.samples[0])), C.int(frames))
	if n == -C.EPIPE {
		C.snd_pcm_prepare(ap.handle)
		n = C.writePCM(ap.handle, (*C.float)(unsafe.Pointer(&ap.samples[0])), C.int(frames))
	}
	if n < 0 {
		return fmt.Errorf("write failed: %s", C.GoString(C.snd_strerror(C.int(n))))
	}
	return nil
}

func (ap *ALSAOutput) Stop() error {
	ap.mutex.Lock()
	defer ap.mutex.Unlock()

	if !ap.started {
		return nil
	}
	close(ap.stop)
	<-ap.done
	C.snd_pcm_drop(ap.handle)
	ap.started = false
	return nil
}

func (ap *ALSAOutput) Close() error {
	ap.Stop()
	ap.mutex.Lock()
	defer ap.mutex.Unlock()

	if ap.handle != nil {
		C.closePCM(ap.handle)
		ap.handle = nil
	}
	return nil
}
