package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"
	"time"

	"speechtext/audio"
	"speechtext/log"
	"speechtext/transcriber"
	"speechtext/usage"
)

const (
	stopWait    = 2 * time.Second
	outputQueue = 16
)

// Outputter inserts text into the focused application.
type Outputter interface {
	Output(text string, useClipboard bool) error
}

type AppOptions struct {
	AutoOutput   bool
	UseClipboard bool
	Device       string // shown to the user
	Stdout       io.Writer
}

// App ties a recorder and a transcriber together for one recording run and
// forwards the results to the sinks and, for finals, to the focused
// application.
type App struct {
	rec  *audio.Recorder
	tr   *transcriber.Transcriber
	out  Outputter
	opts AppOptions
	sink sinks

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	outCh      chan string
	outQuit    chan struct{}
	outDone    chan struct{}
	lastOutput string
	current    string
	usage      usage.Stats
	haveUsage  bool
}

func NewApp(rec *audio.Recorder, tr *transcriber.Transcriber, out Outputter, opts AppOptions, s ...Sink) *App {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &App{rec: rec, tr: tr, out: out, opts: opts, sink: s}
}

// Start begins capturing and transcribing. It returns once capture is
// running; a second call while running is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	log.Info("starting speechtext")
	if err := a.rec.Start(); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	a.current = ""
	a.lastOutput = ""
	a.haveUsage = false

	if a.opts.AutoOutput && a.out != nil {
		a.outCh = make(chan string, outputQueue)
		a.outQuit = make(chan struct{})
		a.outDone = make(chan struct{})
		go a.runOutput(a.outCh, a.outQuit, a.outDone)
	}

	a.sink.SessionStart(SessionInfo{
		Device:   a.opts.Device,
		Backend:  a.tr.Backend().Name(),
		Language: a.tr.Config().Stream.LanguageCode,
	})

	frames := a.watch(a.rec.Frames(ctx))
	done := a.done
	a.tr.Prepare()
	go func() {
		defer close(done)
		a.tr.Transcribe(ctx, frames, transcriber.Handlers{
			OnInterim: a.onInterim,
			OnFinal:   a.onFinal,
			OnUsage:   a.onUsage,
		})
	}()
	return nil
}

// Done is closed when the running session ends, for whatever reason.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Run starts the app and stops it when ctx is done or the session ends on
// its own.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.Done():
		log.Warn("transcription ended, shutting down")
	}
	a.Stop()
	return nil
}

// Drain stops capture and lets the session finish with the audio captured
// so far, then stops the app.
func (a *App) Drain(ctx context.Context) {
	a.mu.Lock()
	running, done := a.running, a.done
	a.mu.Unlock()
	if !running {
		return
	}

	a.rec.Stop()
	select {
	case <-done:
	case <-ctx.Done():
	}
	a.Stop()
}

// Stop ends transcription and capture, waits briefly for the session to
// finish and prints the final usage. Safe to call repeatedly.
func (a *App) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	done, cancel := a.done, a.cancel
	a.mu.Unlock()

	log.Info("stopping speechtext")
	a.tr.Stop()
	a.rec.Stop()
	if !waitFor(done, stopWait) {
		log.Warnf("transcription did not finish within %v", stopWait)
	}
	cancel()

	a.mu.Lock()
	quit, outDone := a.outQuit, a.outDone
	a.outCh, a.outQuit, a.outDone = nil, nil, nil
	u, ok := a.usage, a.haveUsage
	a.mu.Unlock()

	if quit != nil {
		close(quit)
		if !waitFor(outDone, stopWait) {
			log.Warn("text output still busy at shutdown")
		}
	}

	a.sink.SessionEnd(u)
	a.printSummary(u, ok)
}

// Usage returns the latest usage reported by the session.
func (a *App) Usage() (usage.Stats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage, a.haveUsage
}

// Transcript is the most recent interim or final text.
func (a *App) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) onInterim(text string) {
	a.mu.Lock()
	a.current = text
	a.mu.Unlock()
	a.sink.Interim(text)
}

// onFinal queues the text for output unless it repeats the previous output.
func (a *App) onFinal(text string) {
	a.mu.Lock()
	a.current = text
	output := a.outCh != nil && text != a.lastOutput
	if output {
		select {
		case a.outCh <- text:
			a.lastOutput = text
		default:
			output = false
			log.Warn("output queue full, dropping transcript")
		}
	}
	a.mu.Unlock()
	a.sink.Final(text, output)
}

func (a *App) onUsage(u usage.Stats) {
	a.mu.Lock()
	a.usage = u
	a.haveUsage = true
	a.mu.Unlock()
	a.sink.Usage(u)
}

// runOutput types queued finals one at a time so that slow keystroke or
// clipboard output never holds up recognition events.
func (a *App) runOutput(ch <-chan string, quit, done chan struct{}) {
	defer close(done)
	emit := func(text string) {
		if err := a.out.Output(text, a.opts.UseClipboard); err != nil {
			log.Errorf("output error: %v", err)
		}
	}
	for {
		select {
		case text := <-ch:
			emit(text)
		case <-quit:
			for {
				select {
				case text := <-ch:
					emit(text)
				default:
					return
				}
			}
		}
	}
}

func (a *App) watch(frames iter.Seq[audio.Frame]) iter.Seq[audio.Frame] {
	cfg := a.rec.Config()
	mon := newSilenceMonitor(time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate))
	return func(yield func(audio.Frame) bool) {
		for f := range frames {
			switch mon.Frame(f) {
			case SilenceWarn:
				log.Warn("no voice detected")
				a.sink.NoVoice(true)
			case SilenceWarnClear:
				a.sink.NoVoice(false)
			}
			if !yield(f) {
				return
			}
		}
	}
}

func (a *App) printSummary(u usage.Stats, ok bool) {
	w := a.opts.Stdout
	if ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Final Usage Statistics:")
		fmt.Fprintf(w, "Total Audio Duration: %.2f seconds\n", u.TotalAudioSeconds)
		fmt.Fprintf(w, "Billable %g-second Chunks: %d\n", a.tr.Pricing().ChunkSeconds, u.BillableChunks)
		fmt.Fprintf(w, "Estimated Cost: $%.4f USD\n", u.EstimatedCostUSD)
		fmt.Fprintf(w, "Total Transcriptions: %d\n", u.TranscriptionCount)
	}
	fmt.Fprintln(w, "SpeechText stopped")
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
