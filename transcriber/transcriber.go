package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	ErrUnknownBackend     = errors.New("transcriber: unknown backend")
	ErrMissingCredentials = errors.New("transcriber: missing credentials")
)

type EventKind int

const (
	EventEmpty EventKind = iota // response without a usable alternative
	EventInterim
	EventFinal
)

func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	default:
		return "empty"
	}
}

// Event is one recognition result as delivered by the backend.
type Event struct {
	Kind EventKind
	Text string
}

const EncodingLinear16 = "LINEAR16"

type StreamConfig struct {
	Encoding                   string
	SampleRateHertz            int
	LanguageCode               string
	EnableAutomaticPunctuation bool
	InterimResults             bool
	SingleUtterance            bool
	Model                      string // backend default when empty
}

// Backend opens bidirectional recognition streams.
type Backend interface {
	Name() string
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one open recognition exchange. Send and CloseSend are called
// from one goroutine, Recv from another. Recv returns io.EOF once the
// backend has delivered everything after CloseSend. Close aborts the
// exchange and unblocks a pending Recv.
type Stream interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (Event, error)
	Close() error
}

// NewBackend returns the backend registered under name, reading its
// credentials from the environment.
func NewBackend(ctx context.Context, name string) (Backend, error) {
	if err := CheckCredentials(name); err != nil {
		return nil, err
	}
	switch name {
	case "google":
		return NewGoogle(ctx)
	case "deepgram":
		return NewDeepgram(os.Getenv("DEEPGRAM_API_KEY")), nil
	case "fake":
		return NewFakeBackend(nil), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// CheckCredentials reports whether the environment carries what backend
// name needs to authenticate.
func CheckCredentials(name string) error {
	switch name {
	case "google":
		path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		if path == "" {
			return fmt.Errorf("%w: set GOOGLE_APPLICATION_CREDENTIALS to your service account key file", ErrMissingCredentials)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: GOOGLE_APPLICATION_CREDENTIALS: %v", ErrMissingCredentials, err)
		}
		return nil
	case "deepgram":
		if os.Getenv("DEEPGRAM_API_KEY") == "" {
			return fmt.Errorf("%w: set DEEPGRAM_API_KEY", ErrMissingCredentials)
		}
		return nil
	case "fake":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
