// main.go - Offline renderer for Lua patches

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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/intuitionamiga/IntuitionLive/engine"
	"github.com/intuitionamiga/IntuitionLive/patch"
)

func main() {
	outFile := flag.String("o", "", "Output file (default: first patch name with .wav)")
	seconds := flag.Float64("seconds", 10, "Length to render")
	rate := flag.Int("rate", engine.DefaultSampleRate, "Sample rate in Hz")
	channels := flag.Int("channels", engine.DefaultChannels, "Output channels")
	verbose := flag.Bool("v", false, "Log engine warnings")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: liverender [options] patch.lua [more.lua ...]\n\nRenders patches without an audio device and writes 16-bit PCM WAV.\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  liverender -seconds 30 drone.lua\n")
		fmt.Fprintf(os.Stderr, "  liverender -o mix.wav -channels 1 bass.lua pad.lua\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	if *seconds <= 0 {
		fmt.Fprintf(os.Stderr, "error: -seconds must be positive\n")
		os.Exit(1)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	r, err := newRenderer(*rate, *channels, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		if _, err := r.patches.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "error loading %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	frames := int(*seconds * float64(*rate))
	samples := r.render(frames)

	outputPath := *outFile
	if outputPath == "" {
		outputPath = strings.TrimSuffix(flag.Arg(0), ".lua") + ".wav"
	}
	if err := writeWav(outputPath, *rate, *channels, samples); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}

	st := r.eng.Stats()
	fmt.Printf("Output: %s (%d frames, %.2fs)\n", outputPath, frames, float64(frames)/float64(*rate))
	if st.Faults > 0 {
		fmt.Printf("Faults: %d samples replaced by silence, %d signals dropped\n", st.Faults, st.Dropped)
	}
}

type renderer struct {
	eng      *engine.Engine
	patches  *patch.Set
	channels int
}

func newRenderer(rate, channels int, logger *slog.Logger) (*renderer, error) {
	eng, err := engine.New(engine.Config{
		SampleRate:  rate,
		Channels:    channels,
		RingFrames:  8192,
		BatchFrames: 1024,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &renderer{
		eng:      eng,
		patches:  patch.NewSet(eng, 0, logger),
		channels: channels,
	}, nil
}

// render drives the producer by hand and drains exactly what it produced,
// so offline output never contains underrun padding.
func (r *renderer) render(frames int) []float32 {
	out := make([]float32, frames*r.channels)
	done := 0
	for done < frames {
		r.eng.Tick()
		take := min(r.eng.Ring().AvailableData(), frames-done)
		r.eng.Pull(out[done*r.channels : (done+take)*r.channels])
		done += take
	}
	return out
}

func writeWav(path string, rate, channels int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  rate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, v := range samples {
		buf.Data[i] = int(v * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
