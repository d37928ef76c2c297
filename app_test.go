package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"speechtext/audio"
	"speechtext/transcriber"
	"speechtext/usage"
)

type fakeOutput struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeOutput) Output(text string, useClipboard bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeOutput) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.texts)
}

type recordingSink struct {
	mu      sync.Mutex
	starts  []SessionInfo
	events  []string
	usages  int
	ends    int
	lastEnd usage.Stats
	noVoice []bool
}

func (s *recordingSink) add(ev string) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) SessionStart(info SessionInfo) {
	s.mu.Lock()
	s.starts = append(s.starts, info)
	s.mu.Unlock()
}

func (s *recordingSink) Interim(text string) { s.add("interim:" + text) }

func (s *recordingSink) Final(text string, output bool) {
	if output {
		s.add("final+out:" + text)
		return
	}
	s.add("final:" + text)
}

func (s *recordingSink) Usage(usage.Stats) {
	s.mu.Lock()
	s.usages++
	s.mu.Unlock()
}

func (s *recordingSink) NoVoice(warn bool) {
	s.mu.Lock()
	s.noVoice = append(s.noVoice, warn)
	s.mu.Unlock()
}

func (s *recordingSink) SessionEnd(u usage.Stats) {
	s.mu.Lock()
	s.ends++
	s.lastEnd = u
	s.mu.Unlock()
}

// newTestApp wires one second of silence into a scripted backend.
func newTestApp(t *testing.T, script []transcriber.Event, out Outputter, opts AppOptions) (*App, *recordingSink, *transcriber.FakeBackend) {
	t.Helper()
	actx := audio.NewFakeContextPCM(make([]byte, 16000*2), false)
	rec := audio.NewRecorder(actx, audio.RecorderConfig{DeviceIndex: 0})

	backend := transcriber.NewFakeBackend(script)
	cfg := transcriber.DefaultConfig()
	cfg.UsageInterval = time.Hour
	cfg.DrainTimeout = time.Second
	tr := transcriber.New(backend, cfg, nil)

	sink := &recordingSink{}
	return NewApp(rec, tr, out, opts, sink), sink, backend
}

func drain(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Drain(ctx)
}

func TestAppOutputsEachFinalOnce(t *testing.T) {
	out := &fakeOutput{}
	var stdout bytes.Buffer
	app, sink, _ := newTestApp(t, []transcriber.Event{
		{Kind: transcriber.EventInterim, Text: "hel"},
		{Kind: transcriber.EventFinal, Text: "hello"},
		{Kind: transcriber.EventFinal, Text: "hello"},
		{Kind: transcriber.EventFinal, Text: "world"},
	}, out, AppOptions{AutoOutput: true, Device: "fake", Stdout: &stdout})

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	drain(t, app)

	if got, want := out.got(), []string{"hello", "world"}; !slices.Equal(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
	want := []string{"interim:hel", "final+out:hello", "final:hello", "final+out:world"}
	if !slices.Equal(sink.events, want) {
		t.Errorf("sink events = %v, want %v", sink.events, want)
	}
	if app.Transcript() != "world" {
		t.Errorf("transcript = %q, want world", app.Transcript())
	}
	if len(sink.starts) != 1 || sink.starts[0].Backend != "fake" || sink.starts[0].Language != "en-US" {
		t.Errorf("session start = %+v", sink.starts)
	}
}

func TestAppNoOutputWhenDisabled(t *testing.T) {
	out := &fakeOutput{}
	app, sink, _ := newTestApp(t, []transcriber.Event{
		{Kind: transcriber.EventFinal, Text: "hello"},
	}, out, AppOptions{AutoOutput: false, Stdout: &bytes.Buffer{}})

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	drain(t, app)

	if got := out.got(); len(got) != 0 {
		t.Errorf("output = %v, want none", got)
	}
	if !slices.Equal(sink.events, []string{"final:hello"}) {
		t.Errorf("sink events = %v", sink.events)
	}
}

func TestAppOutputErrorDoesNotStopSession(t *testing.T) {
	out := &fakeOutput{err: errors.New("no display")}
	app, sink, _ := newTestApp(t, []transcriber.Event{
		{Kind: transcriber.EventFinal, Text: "one"},
		{Kind: transcriber.EventFinal, Text: "two"},
	}, out, AppOptions{AutoOutput: true, Stdout: &bytes.Buffer{}})

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	drain(t, app)

	if got := out.got(); !slices.Equal(got, []string{"one", "two"}) {
		t.Errorf("output attempts = %v", got)
	}
	if len(sink.events) != 2 {
		t.Errorf("sink events = %v", sink.events)
	}
}

func TestAppFinalSummary(t *testing.T) {
	var stdout bytes.Buffer
	app, sink, _ := newTestApp(t, []transcriber.Event{
		{Kind: transcriber.EventFinal, Text: "hello"},
	}, nil, AppOptions{Stdout: &stdout})

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	drain(t, app)

	u, ok := app.Usage()
	if !ok {
		t.Fatal("no usage reported")
	}
	if math.Abs(u.TotalAudioSeconds-1) > 1e-9 || u.BillableChunks != 1 || u.TranscriptionCount != 1 {
		t.Errorf("usage = %+v", u)
	}
	if sink.ends != 1 || sink.lastEnd != u {
		t.Errorf("session end: %d calls, %+v", sink.ends, sink.lastEnd)
	}

	summary := stdout.String()
	for _, want := range []string{
		"Final Usage Statistics:",
		"Total Audio Duration: 1.00 seconds",
		"Billable 15-second Chunks: 1",
		"Estimated Cost: $0.0060 USD",
		"Total Transcriptions: 1",
		"SpeechText stopped",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestAppStopIdempotent(t *testing.T) {
	var stdout bytes.Buffer
	app, sink, _ := newTestApp(t, nil, nil, AppOptions{Stdout: &stdout})

	app.Stop() // before Start
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	app.Stop()
	app.Stop()

	if n := strings.Count(stdout.String(), "SpeechText stopped"); n != 1 {
		t.Errorf("summary printed %d times", n)
	}
	if len(sink.starts) != 1 || sink.ends != 1 {
		t.Errorf("starts=%d ends=%d, want 1 and 1", len(sink.starts), sink.ends)
	}
}

func TestAppStartFailsForMissingDevice(t *testing.T) {
	actx := audio.NewFakeContextPCM(nil, false)
	rec := audio.NewRecorder(actx, audio.RecorderConfig{DeviceIndex: 7})
	tr := transcriber.New(transcriber.NewFakeBackend(nil), transcriber.DefaultConfig(), nil)
	sink := &recordingSink{}
	app := NewApp(rec, tr, nil, AppOptions{Stdout: &bytes.Buffer{}}, sink)

	err := app.Start(context.Background())
	if !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Fatalf("Start() = %v, want ErrDeviceNotFound", err)
	}
	if len(sink.starts) != 0 {
		t.Error("session started without a device")
	}
	app.Stop()
}

func TestAppRunEndsWithSession(t *testing.T) {
	var stdout bytes.Buffer
	app, sink, backend := newTestApp(t, nil, nil, AppOptions{Stdout: &stdout})
	backend.OpenErr = errors.New("connection refused")

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the session failed")
	}
	if sink.ends != 1 {
		t.Errorf("session end calls = %d, want 1", sink.ends)
	}
	if !strings.Contains(stdout.String(), "SpeechText stopped") {
		t.Errorf("no stop message: %q", stdout.String())
	}
}

func TestAppRunStopsOnCancel(t *testing.T) {
	app, sink, _ := newTestApp(t, []transcriber.Event{
		{Kind: transcriber.EventFinal, Text: "hello"},
	}, nil, AppOptions{Stdout: &bytes.Buffer{}})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	if err := app.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 3*time.Second {
		t.Errorf("Run took %v after cancel", d)
	}
	if sink.ends != 1 {
		t.Errorf("session end calls = %d, want 1", sink.ends)
	}
}
