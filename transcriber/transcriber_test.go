package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEventKindString(t *testing.T) {
	for k, want := range map[EventKind]string{
		EventEmpty:   "empty",
		EventInterim: "interim",
		EventFinal:   "final",
	} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestCheckCredentials(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(keyFile, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name    string
		backend string
		env     map[string]string
		wantErr error
	}{
		{"google missing", "google", map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": ""}, ErrMissingCredentials},
		{"google bad path", "google", map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": keyFile + ".nope"}, ErrMissingCredentials},
		{"google ok", "google", map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": keyFile}, nil},
		{"deepgram missing", "deepgram", map[string]string{"DEEPGRAM_API_KEY": ""}, ErrMissingCredentials},
		{"deepgram ok", "deepgram", map[string]string{"DEEPGRAM_API_KEY": "k"}, nil},
		{"fake", "fake", nil, nil},
		{"unknown", "whisper", nil, ErrUnknownBackend},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := CheckCredentials(tt.backend)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewBackend(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "k")

	b, err := NewBackend(context.Background(), "deepgram")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "deepgram" {
		t.Errorf("Name = %q", b.Name())
	}

	b, err = NewBackend(context.Background(), "fake")
	if err != nil || b.Name() != "fake" {
		t.Errorf("fake backend: %v, %v", b, err)
	}

	if _, err := NewBackend(context.Background(), "whisper"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}
