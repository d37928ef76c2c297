package clipboard

import (
	"fmt"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"speechtext/log"
)

const DefaultRestoreDelay = 600 * time.Millisecond

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Writer puts recognized text into whichever application has keyboard
// focus. Calls are serialized; the clipboard is shared process-wide.
type Writer struct {
	RestoreDelay time.Duration

	mu       sync.Mutex
	read     func() (string, error)
	copy     func(string) error
	paste    func() error
	typeText func(string) error
	sleep    func(time.Duration)
}

func NewWriter(restoreDelay time.Duration) *Writer {
	return &Writer{
		RestoreDelay: restoreDelay,
		read:         Read,
		copy:         Copy,
		paste:        Paste,
		typeText:     Type,
		sleep:        time.Sleep,
	}
}

// Output inserts text at the cursor. With useClipboard the text is pasted
// through the clipboard, whose previous contents are put back afterwards;
// otherwise it is typed as keystrokes. Empty text is ignored.
func (w *Writer) Output(text string, useClipboard bool) error {
	if text == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	log.Infof("output: %d chars (clipboard=%v)", len([]rune(text)), useClipboard)
	if !useClipboard {
		return w.typeText(text)
	}

	previous, readErr := w.read()
	if err := w.copy(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	if err := w.paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	// The target application reads the clipboard asynchronously after the
	// paste chord; restoring too early pastes the old contents.
	w.sleep(w.RestoreDelay)
	if readErr != nil {
		log.Warnf("clipboard not restored, previous contents unreadable: %v", readErr)
		return nil
	}
	if err := w.copy(previous); err != nil {
		return fmt.Errorf("restore clipboard: %w", err)
	}
	return nil
}

var (
	defaultWriter     *Writer
	defaultWriterOnce sync.Once
)

// Output writes text through a process-wide Writer using DefaultRestoreDelay.
func Output(text string, useClipboard bool) error {
	defaultWriterOnce.Do(func() { defaultWriter = NewWriter(DefaultRestoreDelay) })
	return defaultWriter.Output(text, useClipboard)
}
