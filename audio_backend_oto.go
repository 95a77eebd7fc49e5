//go:build !headless

// audio_backend_oto.go - OTO v3 audio output implementation

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

	"github.com/ebitengine/oto/v3"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

func init() {
	defaultBackend = AUDIO_BACKEND_OTO
	registerAudioBackend(AUDIO_BACKEND_OTO, func(src FrameSource, s AudioSettings) (engine.Output, error) {
		return NewOtoOutput(src, s)
	})
}

// OtoOutput pulls interleaved float32 frames from the engine on oto's
// mixer goroutine.
type OtoOutput struct {
	ctx      *oto.Context
	player   *oto.Player
	reader   *floatReader
	settings AudioSettings
	started  bool
	mutex    sync.Mutex // Only for setup/control operations
}

func NewOtoOutput(src FrameSource, s AudioSettings) (*OtoOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   s.SampleRate,
		ChannelCount: s.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   s.DeviceBuffer,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("oto: %w", err)
	}
	<-ready

	return &OtoOutput{
		ctx:      ctx,
		reader:   newFloatReader(src, s.Channels, s.bufferFrames()),
		settings: s,
	}, nil
}

func (op *OtoOutput) Start() error {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if op.started {
		return nil
	}
	if op.player == nil {
		op.player = op.ctx.NewPlayer(op.reader)
		op.player.SetBufferSize(op.settings.bufferFrames() * op.settings.Channels * 4)
	}
	op.player.Play()
	if err := op.player.Err(); err != nil {
		return fmt.Errorf("oto: %w", err)
	}
	op.started = true
	return nil
}

// Stop closes the player so nothing buffered inside oto outlives the
// engine's ring flush.
func (op *OtoOutput) Stop() error {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if !op.started {
		return nil
	}
	op.started = false
	err := op.player.Close()
	op.player = nil
	return err
}

func (op *OtoOutput) IsStarted() bool {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.started
}
