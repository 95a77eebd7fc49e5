// main.go - Intuition Live host

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
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/IntuitionLive/engine"
	"github.com/intuitionamiga/IntuitionLive/patch"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m\n\033[38;2;255;50;147m▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀\033[0m\n\033[38;2;255;80;147m▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███\033[0m\n\033[38;2;255;110;147m░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄\033[0m\n\033[38;2;255;140;147m░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒\033[0m\n\033[38;2;255;170;147m░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░\033[0m\n\033[38;2;255;200;147m ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░\033[0m\n\033[38;2;255;230;147m ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░\033[0m\n\033[38;2;255;255;147m ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░\033[0m")
	fmt.Println("\nLive-coded signal engine: edit, save, hear it change without a click.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionEngine")
	fmt.Println("License: GPLv3 or later")
}

type hostFlags struct {
	configPath   string
	backend      string
	rate         int
	channels     int
	tone         float64
	watch        bool
	noConsole    bool
	logLevel     string
	remote       string
	socket       string
	showFeatures bool
}

func main() {
	boilerPlate()

	var hf hostFlags
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&hf.configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&hf.backend, "backend", "", "audio backend (oto, ebiten, alsa, portaudio, null)")
	flagSet.IntVar(&hf.rate, "rate", 0, "sample rate in Hz")
	flagSet.IntVar(&hf.channels, "channels", 0, "output channels")
	flagSet.Float64Var(&hf.tone, "tone", 0, "play a built-in test tone at this frequency")
	flagSet.BoolVar(&hf.watch, "watch", true, "reload patch files when they change")
	flagSet.BoolVar(&hf.noConsole, "no-console", false, "do not read commands from stdin")
	flagSet.StringVar(&hf.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&hf.remote, "remote", "", "ask a running instance to load this patch and exit")
	flagSet.StringVar(&hf.socket, "socket", "", "IPC socket path")
	flagSet.BoolVar(&hf.showFeatures, "features", false, "print compiled features and exit")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./intuition_live [-config live.yaml] [-backend oto] [-tone 440] [patch.lua ...]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if hf.showFeatures {
		printFeatures()
		return
	}

	if hf.remote != "" {
		if err := SendIPCLoad(hf.socket, hf.remote); err != nil {
			fmt.Printf("Failed to send patch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sent %s to running instance\n", hf.remote)
		return
	}

	cfg := defaultConfig()
	if hf.configPath != "" {
		loaded, err := LoadConfig(hf.configPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyFlags(cfg, flagSet, &hf)

	sink := &logSink{w: os.Stderr}
	logger, err := initLogger(sink, cfg.Log.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg.engineConfig(logger))
	if err != nil {
		fmt.Printf("Failed to initialize engine: %v\n", err)
		os.Exit(1)
	}
	ec := eng.Config()

	output, err := NewAudioOutput(cfg.Audio.Backend, eng, AudioSettings{
		SampleRate:   ec.SampleRate,
		Channels:     ec.Channels,
		DeviceBuffer: cfg.Audio.DeviceBuffer,
	})
	if err != nil {
		fmt.Printf("Failed to initialize sound: %v\n", err)
		os.Exit(1)
	}
	eng.SetOutput(output)

	patches := patch.NewSet(eng, cfg.patchLinger(), logger)
	rt := NewRuntime(eng, patches, cfg.Audio.Backend, logger)

	if hf.tone > 0 {
		if err := rt.Tone(hf.tone, 0.2); err != nil {
			fmt.Printf("Failed to start test tone: %v\n", err)
			os.Exit(1)
		}
	}
	files := append(cfg.Patches, flagSet.Args()...)
	if len(files) > 0 {
		out, err := rt.Exec(append([]string{"load"}, files...))
		fmt.Print(out)
		if err != nil {
			fmt.Printf("Error loading patches: %v\n", err)
		}
	}

	if err := run(rt, cfg, hf, sink); err != nil {
		fmt.Printf("Engine stopped: %v\n", err)
		closeOutput(output)
		os.Exit(1)
	}
	closeOutput(output)
}

// applyFlags overrides file settings with flags given on the command line.
func applyFlags(cfg *Config, fs *flag.FlagSet, hf *hostFlags) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Audio.Backend = hf.backend
		case "rate":
			cfg.Audio.SampleRate = hf.rate
		case "channels":
			cfg.Audio.Channels = hf.channels
		case "watch":
			cfg.Watch.Enabled = hf.watch
		case "log-level":
			cfg.Log.Level = hf.logLevel
		case "socket":
			cfg.IPC.Socket = hf.socket
		}
	})
}

// run starts the engine and its services and blocks until the user quits
// or the process is signalled.
func run(rt *Runtime, cfg *Config, hf hostFlags, sink *logSink) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.eng.Run(gctx)
	})

	if cfg.Watch.Enabled {
		interval := cfg.Watch.Interval
		if interval <= 0 {
			interval = 250 * time.Millisecond
		}
		g.Go(func() error {
			return rt.patches.Watch(gctx, interval)
		})
	}

	if cfg.IPC.Enabled {
		srv, err := NewIPCServer(cfg.IPC.Socket, rt.HandleIPC, rt.log)
		if err != nil {
			rt.log.Warn("ipc disabled", "err", err)
		} else {
			srv.Start()
			g.Go(func() error {
				<-gctx.Done()
				srv.Stop()
				return nil
			})
		}
	}

	stopConsole := func() {}
	if !hf.noConsole {
		fmt.Println("Type help for commands, quit to exit.")
		stopConsole = startConsole(rt, sink, cancel)
	}

	err := g.Wait()
	stopConsole()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func closeOutput(o engine.Output) {
	if c, ok := o.(io.Closer); ok {
		c.Close()
	}
}
