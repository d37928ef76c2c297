package transcriber

import (
	"context"
	"errors"
	"io"
	"sync"
)

var errFakeStreamClosed = errors.New("fake stream closed")

// FakeBackend replays a scripted list of events on every stream it opens.
type FakeBackend struct {
	script []Event

	// EveryBytes paces the script: event i is released once (i+1)*EveryBytes
	// bytes of audio were sent. Zero releases everything immediately. The
	// rest of the script is always released by CloseSend.
	EveryBytes int
	OpenErr    error
	RecvErr    error // returned after the script instead of io.EOF
	// HoldOpen keeps Recv blocked after CloseSend until Close.
	HoldOpen bool
	// BreakErr is returned by Recv once BreakAfter events were delivered,
	// while audio may still be flowing.
	BreakErr   error
	BreakAfter int

	mu      sync.Mutex
	configs []StreamConfig
	sent    int
}

func NewFakeBackend(script []Event) *FakeBackend {
	return &FakeBackend{script: script}
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.configs = append(f.configs, cfg)
	return &fakeStream{
		backend: f,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Configs returns the configuration of every stream opened so far.
func (f *FakeBackend) Configs() []StreamConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StreamConfig(nil), f.configs...)
}

// BytesSent is the audio total across all streams.
func (f *FakeBackend) BytesSent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeStream struct {
	backend *FakeBackend
	wake    chan struct{}
	done    chan struct{}

	mu         sync.Mutex
	sent       int
	pos        int
	halfClosed bool
	closeOnce  sync.Once
}

func (s *fakeStream) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *fakeStream) Send(pcm []byte) error {
	select {
	case <-s.done:
		return errFakeStreamClosed
	default:
	}
	s.mu.Lock()
	if s.halfClosed {
		s.mu.Unlock()
		return errors.New("fake stream: send after CloseSend")
	}
	s.sent += len(pcm)
	s.mu.Unlock()

	s.backend.mu.Lock()
	s.backend.sent += len(pcm)
	s.backend.mu.Unlock()

	s.notify()
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	s.halfClosed = true
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *fakeStream) next() (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	script := s.backend.script
	every := s.backend.EveryBytes
	if s.backend.BreakErr != nil && s.pos >= s.backend.BreakAfter {
		return Event{}, true, s.backend.BreakErr
	}
	if s.pos < len(script) {
		if every <= 0 || s.halfClosed || s.sent >= (s.pos+1)*every {
			ev := script[s.pos]
			s.pos++
			return ev, true, nil
		}
		return Event{}, false, nil
	}
	if s.halfClosed && !s.backend.HoldOpen {
		if s.backend.RecvErr != nil {
			return Event{}, true, s.backend.RecvErr
		}
		return Event{}, true, io.EOF
	}
	return Event{}, false, nil
}

func (s *fakeStream) Recv() (Event, error) {
	for {
		select {
		case <-s.done:
			return Event{}, errFakeStreamClosed
		default:
		}
		if ev, ok, err := s.next(); ok {
			return ev, err
		}
		select {
		case <-s.wake:
		case <-s.done:
		}
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
