package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"speechtext/audio"
	"speechtext/log"
	"speechtext/usage"
)

const (
	// Google rejects audio requests above 25600 bytes.
	DefaultMaxPayload    = 25600
	DefaultUsageInterval = time.Second
	DefaultDrainTimeout  = 5 * time.Second
)

type Config struct {
	Stream        StreamConfig
	MaxPayload    int
	UsageInterval time.Duration // minimum spacing of OnUsage during a session
	DrainTimeout  time.Duration // wait for the backend after the last send
}

func DefaultConfig() Config {
	return Config{
		Stream: StreamConfig{
			Encoding:                   EncodingLinear16,
			SampleRateHertz:            audio.DefaultSampleRate,
			LanguageCode:               "en-US",
			EnableAutomaticPunctuation: true,
			InterimResults:             true,
		},
		MaxPayload:    DefaultMaxPayload,
		UsageInterval: DefaultUsageInterval,
		DrainTimeout:  DefaultDrainTimeout,
	}
}

// Handlers receive session output on the goroutine running Transcribe, in
// the order the backend produced it. Nil handlers are skipped. Handlers
// must return quickly; they stall event delivery while they run.
type Handlers struct {
	OnInterim func(text string)
	OnFinal   func(text string)
	OnUsage   func(usage.Stats)
}

// Transcriber drives streaming recognition sessions against one backend.
type Transcriber struct {
	backend Backend
	cfg     Config
	acct    *usage.Accountant

	mu       sync.Mutex
	cancel   context.CancelFunc
	gen      uint64
	prepared bool
	stopped  bool // Stop arrived between Prepare and Transcribe
	session  string
}

func New(backend Backend, cfg Config, acct *usage.Accountant) *Transcriber {
	def := DefaultConfig()
	if cfg.Stream.Encoding == "" {
		cfg.Stream.Encoding = def.Stream.Encoding
	}
	if cfg.Stream.SampleRateHertz <= 0 {
		cfg.Stream.SampleRateHertz = def.Stream.SampleRateHertz
	}
	if cfg.Stream.LanguageCode == "" {
		cfg.Stream.LanguageCode = def.Stream.LanguageCode
	}
	cfg.Stream.InterimResults = true
	if cfg.UsageInterval <= 0 {
		cfg.UsageInterval = def.UsageInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if acct == nil {
		acct = usage.New(usage.DefaultPricing())
	}
	return &Transcriber{backend: backend, cfg: cfg, acct: acct}
}

func (t *Transcriber) Backend() Backend { return t.backend }

func (t *Transcriber) Config() Config { return t.cfg }

// Usage returns a snapshot of the current (or last) session's usage.
func (t *Transcriber) Usage() usage.Stats { return t.acct.Snapshot() }

func (t *Transcriber) Pricing() usage.Pricing { return t.acct.Pricing() }

// SessionID identifies the current (or last) session.
func (t *Transcriber) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Prepare announces a session that is about to start on another
// goroutine, so that a Stop issued before Transcribe registers still ends
// it.
func (t *Transcriber) Prepare() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prepared = true
	t.stopped = false
}

// Stop ends the outbound feed of the running (or prepared) session. The
// session then waits for the backend to deliver its remaining results.
// Safe to call repeatedly and from any goroutine.
func (t *Transcriber) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.cancel != nil:
		t.cancel()
	case t.prepared:
		t.stopped = true
	}
}

// register makes cancel the target of Stop and returns a function that
// unregisters it when the session ends.
func (t *Transcriber) register(cancel context.CancelFunc, id string) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	t.cancel = cancel
	t.session = id
	if t.stopped {
		cancel()
	}
	t.prepared, t.stopped = false, false
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen == gen {
			t.cancel = nil
		}
	}
}

type sessionStats struct {
	connect      time.Duration
	sentChunks   int
	sentBytes    int
	recvMessages int
	recvFinal    int
	recvInterim  int
	recvEmpty    int
}

// Transcribe runs one recognition session over frames and blocks until it
// ends: the frames run out, ctx is done, Stop is called, or the transport
// fails. Usage is reset when the session starts and OnUsage always fires
// once more after the session ended. Transport errors are logged, never
// returned.
func (t *Transcriber) Transcribe(ctx context.Context, frames iter.Seq[audio.Frame], h Handlers) {
	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	id := uuid.NewString()
	defer t.register(cancelFeed, id)()

	t.acct.Reset()
	started := time.Now()
	var stats sessionStats

	log.SessionStart(id, t.backend.Name(), t.cfg.Stream.LanguageCode, t.cfg.Stream.SampleRateHertz)
	defer func() {
		u := t.acct.Snapshot()
		if h.OnUsage != nil {
			h.OnUsage(u)
		}
		log.StreamMetrics(log.StreamMetricsData{
			Session:      id,
			Backend:      t.backend.Name(),
			ConnectMs:    float64(stats.connect.Milliseconds()),
			TotalMs:      float64(time.Since(started).Milliseconds()),
			SentChunks:   stats.sentChunks,
			SentKB:       float64(stats.sentBytes) / 1024,
			RecvMessages: stats.recvMessages,
			RecvFinal:    stats.recvFinal,
			RecvInterim:  stats.recvInterim,
			RecvEmpty:    stats.recvEmpty,
		})
		log.SessionEnd(id, log.UsageData{
			AudioS:         u.TotalAudioSeconds,
			Chunks:         u.ChunksProcessed,
			Characters:     u.TotalCharacters,
			Transcriptions: u.TranscriptionCount,
			ElapsedS:       u.ElapsedSeconds,
			BillableChunks: u.BillableChunks,
			CostUSD:        u.EstimatedCostUSD,
		})
	}()

	// The stream outlives the feed so results for audio already sent can
	// still arrive after Stop. Stopping while connecting aborts the dial.
	streamCtx, cancelStream := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelStream()
	abortDial := context.AfterFunc(feedCtx, cancelStream)

	connectStart := time.Now()
	stream, err := t.backend.Open(streamCtx, t.cfg.Stream)
	stats.connect = time.Since(connectStart)
	if !abortDial() && err == nil {
		// Stopped while the dial was completing.
		stream.Close()
		err = context.Canceled
	}
	if err != nil {
		t.logStreamErr(feedCtx, fmt.Errorf("open %s stream: %w", t.backend.Name(), err), false)
		return
	}

	var closing atomic.Bool
	closeStream := func() {
		closing.Store(true)
		stream.Close()
	}
	defer closeStream()

	var g errgroup.Group
	sendDone := make(chan struct{})
	events := make(chan Event)

	g.Go(func() error {
		defer close(sendDone)
		for payload := range Relay(feedCtx, frames, t.acct, t.cfg.MaxPayload) {
			if err := stream.Send(payload); err != nil {
				stream.Close()
				return fmt.Errorf("send audio: %w", err)
			}
			stats.sentChunks++
			stats.sentBytes += len(payload)
		}
		if err := stream.CloseSend(); err != nil {
			stream.Close()
			return fmt.Errorf("close send: %w", err)
		}
		return nil
	})

	// A receive failure ends the session, feed included.
	var recvErr error
	g.Go(func() error {
		defer close(events)
		for {
			ev, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				err = fmt.Errorf("receive: %w", err)
				if feedCtx.Err() == nil && !closing.Load() {
					recvErr = err
				}
				cancelFeed()
				stream.Close()
				return err
			}
			events <- ev
		}
	})

	ticker := time.NewTicker(t.cfg.UsageInterval)
	defer ticker.Stop()
	var drain <-chan time.Time

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			t.dispatch(id, ev, h, &stats)
		case <-ticker.C:
			if h.OnUsage != nil {
				h.OnUsage(t.acct.Snapshot())
			}
		case <-sendDone:
			sendDone = nil
			timer := time.NewTimer(t.cfg.DrainTimeout)
			defer timer.Stop()
			drain = timer.C
		case <-drain:
			drain = nil
			log.Warnf("%s stream did not finish within %v, closing", t.backend.Name(), t.cfg.DrainTimeout)
			closeStream()
		}
	}

	err = g.Wait()
	switch {
	case recvErr != nil:
		log.Errorf("transcription error: %v", recvErr)
	case err != nil:
		t.logStreamErr(feedCtx, err, closing.Load())
	}
}

func (t *Transcriber) dispatch(session string, ev Event, h Handlers, stats *sessionStats) {
	stats.recvMessages++
	switch ev.Kind {
	case EventFinal:
		stats.recvFinal++
	case EventInterim:
		stats.recvInterim++
	default:
		stats.recvEmpty++
		return
	}

	final := ev.Kind == EventFinal
	t.acct.RecordTranscript(ev.Text, final)
	log.Transcript(session, final, ev.Text)

	if final {
		if h.OnFinal != nil {
			h.OnFinal(ev.Text)
		}
		return
	}
	if h.OnInterim != nil {
		h.OnInterim(ev.Text)
	}
}

// Errors after Stop or a forced close are the expected way for a stream to
// end and are not reported as failures.
func (t *Transcriber) logStreamErr(feedCtx context.Context, err error, closing bool) {
	if feedCtx.Err() != nil || closing {
		log.Infof("stream ended after stop: %v", err)
		return
	}
	log.Errorf("transcription error: %v", err)
}
