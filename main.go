package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"

	"speechtext/audio"
	"speechtext/clipboard"
	"speechtext/config"
	"speechtext/doctor"
	"speechtext/log"
	"speechtext/metrics"
	"speechtext/publish"
	"speechtext/shutdown"
	"speechtext/transcriber"
	"speechtext/usage"
)

var version = "dev"

type cliFlags struct {
	device       *int
	language     *string
	noAutoOutput *bool
	listDevices  *bool
	setup        *bool
	backend      *string
	configPath   *string
	logPath      *string
	logLevel     *string
	tui          *bool
	clipboard    *bool
	metrics      *string
	nats         *string
	test         *string
	doctor       *bool
	version      *bool
	profile      *string
}

func newFlags(set *flag.FlagSet) *cliFlags {
	def := config.Default()
	return &cliFlags{
		device:       set.Int("device", def.Audio.Device, "Audio input device index (-1 = system default)"),
		language:     set.String("language", def.Recognition.Language, "Language code for transcription"),
		noAutoOutput: set.Bool("no-auto-output", false, "Disable automatic text output"),
		listDevices:  set.Bool("list-devices", false, "List available audio devices and exit"),
		setup:        set.Bool("setup", false, "Select microphone device interactively"),
		backend:      set.String("backend", def.Recognition.Backend, "Recognition backend: google or deepgram"),
		configPath:   set.String("config", "", "YAML configuration file"),
		logPath:      set.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)"),
		logLevel:     set.String("log-level", def.Logging.Level, "Diagnostics log level: debug, info, warn, error"),
		tui:          set.Bool("tui", true, "Run with terminal UI"),
		clipboard:    set.Bool("clipboard", def.Output.UseClipboard, "Output text by pasting through the clipboard instead of typing"),
		metrics:      set.String("metrics", "", "Serve Prometheus metrics on this address (e.g., :9090)"),
		nats:         set.String("nats", "", "Publish recognition events to this NATS server"),
		test:         set.String("test", "", "Replay a WAV file headless instead of recording"),
		doctor:       set.Bool("doctor", false, "Run system diagnostics and exit"),
		version:      set.Bool("version", false, "Print version and exit"),
		profile:      set.String("profile", "", "Enable pprof profiling server (e.g., localhost:6060)"),
	}
}

// apply copies explicitly set flags over the file configuration.
func (f *cliFlags) apply(set *flag.FlagSet, cfg *config.Config) {
	set.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "device":
			cfg.Audio.Device = *f.device
		case "language":
			cfg.Recognition.Language = *f.language
		case "backend":
			cfg.Recognition.Backend = *f.backend
		case "no-auto-output":
			cfg.Output.AutoOutput = !*f.noAutoOutput
		case "clipboard":
			cfg.Output.UseClipboard = *f.clipboard
		case "logpath":
			cfg.Logging.Path = *f.logPath
		case "log-level":
			cfg.Logging.Level = *f.logLevel
		case "metrics":
			cfg.Metrics.Address = *f.metrics
		case "nats":
			cfg.Publish.NATSURL = *f.nats
		}
	})
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

func recorderConfig(cfg config.Config) audio.RecorderConfig {
	return audio.RecorderConfig{
		DeviceIndex: cfg.Audio.Device,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		FrameSize:   cfg.Audio.FrameSize,
	}
}

func transcriberConfig(cfg config.Config) transcriber.Config {
	tc := transcriber.DefaultConfig()
	tc.Stream.SampleRateHertz = cfg.Audio.SampleRate
	tc.Stream.LanguageCode = cfg.Recognition.Language
	tc.Stream.EnableAutomaticPunctuation = cfg.Recognition.Punctuation
	tc.Stream.SingleUtterance = cfg.Recognition.SingleUtterance
	tc.Stream.Model = cfg.Recognition.Model
	tc.UsageInterval = cfg.Usage.UpdateInterval
	tc.DrainTimeout = cfg.Recognition.DrainTimeout
	return tc
}

func pricing(cfg config.Config) usage.Pricing {
	return usage.Pricing{
		PricePerChunk: cfg.Usage.PricePerChunk,
		ChunkSeconds:  cfg.Usage.ChunkSeconds,
	}
}

func credentialsHelp(backend string) string {
	switch backend {
	case "google":
		return "Set GOOGLE_APPLICATION_CREDENTIALS to the path of your service account key file.\n" +
			"See: https://cloud.google.com/speech-to-text/docs/before-you-begin"
	case "deepgram":
		return "Set DEEPGRAM_API_KEY to your Deepgram API key (a .env file in the working directory is read too)."
	}
	return ""
}

func main() {
	os.Exit(run())
}

func run() int {
	fl := newFlags(flag.CommandLine)
	flag.Parse()

	if *fl.version {
		fmt.Printf("speechtext %s\n", version)
		return 0
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	cfg, err := loadConfig(*fl.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fl.apply(flag.CommandLine, &cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid options: %v\n", err)
		return 1
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if *fl.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *fl.profile)
			if err := http.ListenAndServe(*fl.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	// Device listing, diagnostics and replay work without credentials.
	if *fl.listDevices {
		return listDevices(os.Stdout)
	}
	if *fl.doctor {
		return doctor.Run(doctor.Options{
			Backend:  cfg.Recognition.Backend,
			Language: cfg.Recognition.Language,
			Device:   cfg.Audio.Device,
		})
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if *fl.test != "" {
		return runTestMode(ctx, *fl.test, cfg, os.Stdout)
	}

	if err := transcriber.CheckCredentials(cfg.Recognition.Backend); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if help := credentialsHelp(cfg.Recognition.Backend); help != "" {
			fmt.Fprintln(os.Stderr, help)
		}
		return 1
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		return 1
	}
	defer actx.Close()

	if *fl.setup {
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to the configured device")
		} else {
			cfg.Audio.Device = dev.Index
		}
	}

	deviceLabel := "system default"
	if cfg.Audio.Device >= 0 {
		dev, err := audio.DeviceByIndex(actx, cfg.Audio.Device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: input device %d: %v (see -list-devices)\n", cfg.Audio.Device, err)
			return 1
		}
		deviceLabel = fmt.Sprintf("%d: %s", dev.Index, dev.Name)
		if audio.IsBluetooth(dev.Name) {
			deviceLabel += " (BT!)"
			log.Warn("bluetooth input device, expect reduced accuracy")
		}
	}

	backend, err := transcriber.NewBackend(ctx, cfg.Recognition.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	tr := transcriber.New(backend, transcriberConfig(cfg), usage.New(pricing(cfg)))
	rec := audio.NewRecorder(actx, recorderConfig(cfg))

	var extra []Sink
	if cfg.Metrics.Address != "" {
		m := metrics.New()
		srv := m.NewServer(cfg.Metrics.Address)
		go func() {
			log.Infof("metrics listening on %s", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server error: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		extra = append(extra, metricsSink{m: m})
	}
	if cfg.Publish.NATSURL != "" {
		p, err := publish.Connect(cfg.Publish.NATSURL, cfg.Publish.Subject)
		if err != nil {
			log.Warnf("nats publishing disabled: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			defer p.Close()
			extra = append(extra, natsSink{p: p, session: tr.SessionID})
		}
	}

	var out Outputter
	if cfg.Output.AutoOutput {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
		out = clipboard.NewWriter(cfg.Output.RestoreDelay)
	}

	var display Sink = newPlainSink(os.Stdout)
	quitTUI := func() {}
	if *fl.tui {
		p := NewTUIProgram(cfg.Usage.ChunkSeconds)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := p.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			// Ctrl+C inside the TUI arrives as a key press, not a signal.
			stop()
		}()
		display = &tuiSink{p: p, done: done}
		quitTUI = func() {
			p.Quit()
			waitFor(done, stopWait)
		}
	}

	app := NewApp(rec, tr, out, AppOptions{
		AutoOutput:   cfg.Output.AutoOutput,
		UseClipboard: cfg.Output.UseClipboard,
		Device:       deviceLabel,
	}, append([]Sink{display}, extra...)...)

	if err := app.Run(ctx); err != nil {
		quitTUI()
		log.Errorf("run error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func listDevices(w io.Writer) int {
	actx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()
	return printDevices(w, actx)
}

func printDevices(w io.Writer, actx audio.Context) int {
	devices, err := audio.ListInputDevices(actx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing devices: %v\n", err)
		return 1
	}
	fmt.Fprintln(w, "Available audio devices:")
	for _, d := range devices {
		line := fmt.Sprintf("%d: %s (Inputs: %d)", d.Index, d.Name, d.InputChannels)
		if audio.IsBluetooth(d.Name) {
			line += " [Bluetooth, lower audio quality]"
		}
		fmt.Fprintln(w, line)
	}
	return 0
}
