// config.go - Host configuration file and defaults

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
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/intuitionamiga/IntuitionLive/engine"
)

// Config is the YAML configuration of the live host. Keys left out of the
// file keep the values from defaultConfig.
type Config struct {
	Audio struct {
		Backend      string        `yaml:"backend"`
		SampleRate   int           `yaml:"sample_rate"`
		Channels     int           `yaml:"channels"`
		DeviceBuffer time.Duration `yaml:"device_buffer"`
	} `yaml:"audio"`

	Engine struct {
		RingFrames    int           `yaml:"ring_frames"`
		ArenaCells    int           `yaml:"arena_cells"`
		SlotSize      int           `yaml:"slot_size"`
		Fade          time.Duration `yaml:"fade"`
		Tick          time.Duration `yaml:"tick"`
		BatchFrames   int           `yaml:"batch_frames"`
		Prefill       float64       `yaml:"prefill"`
		LowWater      float64       `yaml:"low_water"`
		MaxFaults     int           `yaml:"max_faults"`
		AllowDegraded bool          `yaml:"allow_degraded"`
	} `yaml:"engine"`

	Patches []string `yaml:"patches"`

	Watch struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"watch"`

	IPC struct {
		Enabled bool   `yaml:"enabled"`
		Socket  string `yaml:"socket"`
	} `yaml:"ipc"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	var c Config
	c.Audio.Backend = defaultBackend
	c.Audio.SampleRate = engine.DefaultSampleRate
	c.Audio.Channels = engine.DefaultChannels
	c.Audio.DeviceBuffer = 20 * time.Millisecond
	c.Engine.RingFrames = engine.DefaultRingFrames
	c.Engine.Fade = engine.DefaultFadeDuration
	c.Engine.Tick = engine.DefaultTickPeriod
	c.Watch.Enabled = true
	c.Watch.Interval = 250 * time.Millisecond
	c.IPC.Enabled = true
	c.Log.Level = "info"
	return &c
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return config, nil
}

// engineConfig maps the file settings onto an engine configuration. Zero
// values fall through to the engine defaults.
func (c *Config) engineConfig(logger *slog.Logger) engine.Config {
	return engine.Config{
		SampleRate:      c.Audio.SampleRate,
		Channels:        c.Audio.Channels,
		RingFrames:      c.Engine.RingFrames,
		ArenaCells:      c.Engine.ArenaCells,
		SlotSize:        c.Engine.SlotSize,
		FadeDuration:    c.Engine.Fade,
		TickPeriod:      c.Engine.Tick,
		BatchFrames:     c.Engine.BatchFrames,
		PrefillFraction: c.Engine.Prefill,
		LowWater:        c.Engine.LowWater,
		MaxFaults:       c.Engine.MaxFaults,
		AllowDegraded:   c.Engine.AllowDegraded,
		Logger:          logger,
	}
}

// patchLinger is how long a replaced patch keeps its Lua state alive.
func (c *Config) patchLinger() time.Duration {
	fade := c.Engine.Fade
	if fade <= 0 {
		fade = engine.DefaultFadeDuration
	}
	return 2*fade + 100*time.Millisecond
}
