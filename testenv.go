package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"speechtext/audio"
	"speechtext/config"
	"speechtext/log"
	"speechtext/transcriber"
	"speechtext/usage"
)

// replayScript gives the fake backend one interim and one final result per
// second of audio, released as that second is streamed.
func replayScript(seconds int) []transcriber.Event {
	var script []transcriber.Event
	for i := range seconds {
		text := fmt.Sprintf("second %d", i+1)
		script = append(script,
			transcriber.Event{Kind: transcriber.EventInterim, Text: text + "..."},
			transcriber.Event{Kind: transcriber.EventFinal, Text: text},
		)
	}
	return script
}

// replayBackend uses the configured backend when its credentials are
// present and the scripted fake otherwise.
func replayBackend(ctx context.Context, cfg config.Config, seconds float64) (transcriber.Backend, bool, error) {
	name := cfg.Recognition.Backend
	if name != "fake" && transcriber.CheckCredentials(name) == nil {
		b, err := transcriber.NewBackend(ctx, name)
		return b, true, err
	}
	if name != "fake" {
		log.Infof("no credentials for %s, replaying into the fake backend", name)
	}
	fake := transcriber.NewFakeBackend(replayScript(int(seconds)))
	fake.EveryBytes = cfg.Audio.SampleRate * audio.BitsPerSample / 8 / 2
	return fake, false, nil
}

// runTestMode streams a WAV file through the full pipeline without a
// microphone or TUI and prints the results to w.
func runTestMode(ctx context.Context, wavPath string, cfg config.Config, w io.Writer) int {
	info, err := os.Stat(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	pcmBytes := max(info.Size()-audio.WAVHeaderSize, 0)
	seconds := float64(pcmBytes) / float64(cfg.Audio.SampleRate*audio.BitsPerSample/8)

	backend, live, err := replayBackend(ctx, cfg, seconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	// A live backend expects audio at speaking pace.
	fakeCtx, err := audio.NewFakeContext(wavPath, live)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	rcfg := recorderConfig(cfg)
	rcfg.DeviceIndex = 0
	rec := audio.NewRecorder(fakeCtx, rcfg)
	tr := transcriber.New(backend, transcriberConfig(cfg), usage.New(pricing(cfg)))

	app := NewApp(rec, tr, nil, AppOptions{Device: wavPath, Stdout: w}, newPlainSink(w))
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if live {
		select {
		case <-time.After(time.Duration(seconds * float64(time.Second))):
		case <-ctx.Done():
		}
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.Recognition.DrainTimeout+stopWait)
	defer cancel()
	app.Drain(dctx)
	return 0
}
