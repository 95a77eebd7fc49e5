// config.go - Engine construction parameters

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

package engine

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultSampleRate      = 48000
	DefaultChannels        = 2
	DefaultRingFrames      = 4096
	DefaultArenaCells      = 64 * 1024
	DefaultSlotSize        = 256
	DefaultFadeDuration    = 10 * time.Millisecond
	DefaultTickPeriod      = 2 * time.Millisecond
	DefaultBatchFrames     = 256
	DefaultPrefillFraction = 0.75
	DefaultLowWater        = 0.25
	DefaultMaxFaults       = 4800 // 100ms worth of faulting samples at 48kHz
)

// Config describes an Engine. Zero fields take the defaults above.
type Config struct {
	SampleRate int
	Channels   int

	RingFrames int // ring capacity in frames; one frame is always kept free
	ArenaCells int // total float64 cells in the state arena
	SlotSize   int // cells reserved per signal

	FadeDuration    time.Duration // crossfade length for replace/remove
	TickPeriod      time.Duration // minimum gap between producer ticks
	BatchFrames     int           // max frames generated per tick
	PrefillFraction float64       // ring occupancy reached before output starts
	LowWater        float64       // occupancy fraction below which a warning is logged

	MaxFaults     int  // faults before a voice is dropped, negative disables auto-removal
	AllowDegraded bool // share an occupied slot instead of failing on exhaustion

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.RingFrames == 0 {
		c.RingFrames = DefaultRingFrames
	}
	if c.ArenaCells == 0 {
		c.ArenaCells = DefaultArenaCells
	}
	if c.SlotSize == 0 {
		c.SlotSize = DefaultSlotSize
	}
	if c.FadeDuration == 0 {
		c.FadeDuration = DefaultFadeDuration
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = DefaultTickPeriod
	}
	if c.BatchFrames == 0 {
		c.BatchFrames = DefaultBatchFrames
	}
	if c.PrefillFraction == 0 {
		c.PrefillFraction = DefaultPrefillFraction
	}
	if c.LowWater == 0 {
		c.LowWater = DefaultLowWater
	}
	if c.MaxFaults == 0 {
		c.MaxFaults = DefaultMaxFaults
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.Channels <= 0:
		return fmt.Errorf("%w: %d channels", ErrInvalidConfig, c.Channels)
	case c.RingFrames < 2:
		return fmt.Errorf("%w: ring of %d frames", ErrInvalidConfig, c.RingFrames)
	case c.SlotSize <= 0:
		return fmt.Errorf("%w: slot size %d", ErrInvalidConfig, c.SlotSize)
	case c.ArenaCells < c.SlotSize:
		return fmt.Errorf("%w: arena of %d cells cannot hold a %d cell slot", ErrInvalidConfig, c.ArenaCells, c.SlotSize)
	case c.BatchFrames <= 0:
		return fmt.Errorf("%w: batch of %d frames", ErrInvalidConfig, c.BatchFrames)
	case c.PrefillFraction < 0 || c.PrefillFraction > 1:
		return fmt.Errorf("%w: prefill fraction %g", ErrInvalidConfig, c.PrefillFraction)
	case c.LowWater < 0 || c.LowWater > 1:
		return fmt.Errorf("%w: low water fraction %g", ErrInvalidConfig, c.LowWater)
	case c.FadeDuration < 0 || c.TickPeriod < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// fadeSamples converts FadeDuration to a sample count, at least 1.
func (c Config) fadeSamples() int {
	n := int(c.FadeDuration.Seconds() * float64(c.SampleRate))
	return max(n, 1)
}
