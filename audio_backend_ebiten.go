//go:build !headless

// audio_backend_ebiten.go - Ebiten audio output implementation

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

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func init() {
	registerAudioBackend(AUDIO_BACKEND_EBITEN, func(src FrameSource, s AudioSettings) (engine.Output, error) {
		return NewEbitenOutput(src, s)
	})
}

// EbitenOutput plays through ebiten's audio context. Ebiten mixes in
// stereo only, so the engine must run with two channels.
type EbitenOutput struct {
	ctx      *audio.Context
	player   *audio.Player
	reader   *floatReader
	settings AudioSettings
	mutex    sync.Mutex
}

func NewEbitenOutput(src FrameSource, s AudioSettings) (*EbitenOutput, error) {
	if s.Channels != 2 {
		return nil, fmt.Errorf("ebiten: stereo output required, engine has %d channels", s.Channels)
	}
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(s.SampleRate)
	} else if ctx.SampleRate() != s.SampleRate {
		return nil, fmt.Errorf("ebiten: audio context already running at %d Hz", ctx.SampleRate())
	}
	return &EbitenOutput{
		ctx:      ctx,
		reader:   newFloatReader(src, s.Channels, s.bufferFrames()),
		settings: s,
	}, nil
}

func (e *EbitenOutput) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.player == nil {
		p, err := e.ctx.NewPlayerF32(e.reader)
		if err != nil {
			return fmt.Errorf("ebiten: %w", err)
		}
		p.SetBufferSize(e.settings.DeviceBuffer)
		e.player = p
	}
	e.player.Play()
	return nil
}

func (e *EbitenOutput) Stop() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.player == nil {
		return nil
	}
	err := e.player.Close()
	e.player = nil
	return err
}
