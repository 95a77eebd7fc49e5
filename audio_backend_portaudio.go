//go:build portaudio && !headless

// audio_backend_portaudio.go - PortAudio callback output implementation

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
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func init() {
	registerAudioBackend(AUDIO_BACKEND_PORTAUDIO, func(src FrameSource, s AudioSettings) (engine.Output, error) {
		return NewPortAudioOutput(src, s)
	})
}

// PortAudioOutput fills PortAudio's interleaved buffer directly from the
// engine in the stream callback.
type PortAudioOutput struct {
	stream  *portaudio.Stream
	src     FrameSource
	started bool
	mutex   sync.Mutex
}

func NewPortAudioOutput(src FrameSource, s AudioSettings) (*PortAudioOutput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	o := &PortAudioOutput{src: src}
	stream, err := portaudio.OpenDefaultStream(0, s.Channels, float64(s.SampleRate), s.bufferFrames(), o.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	o.stream = stream
	return o, nil
}

func (o *PortAudioOutput) process(out []float32) {
	o.src.Pull(out)
}

func (o *PortAudioOutput) Start() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.started {
		return nil
	}
	if err := o.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	o.started = true
	return nil
}

func (o *PortAudioOutput) Stop() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if !o.started {
		return nil
	}
	o.started = false
	return o.stream.Stop()
}

// Close releases the stream and the PortAudio library.
func (o *PortAudioOutput) Close() error {
	o.Stop()
	o.mutex.Lock()
	defer o.mutex.Unlock()
	err := o.stream.Close()
	portaudio.Terminate()
	return err
}
