//go:build linux

package clipboard

import "testing"

func TestCharToKey(t *testing.T) {
	for _, tt := range []struct {
		c     rune
		code  int
		shift bool
	}{
		{'a', 30, false},
		{'z', 44, false},
		{'H', 35, true},
		{'0', 11, false},
		{'9', 10, false},
		{' ', 57, false},
		{'.', 52, false},
		{'?', 53, true},
		{'"', 40, true},
	} {
		k, ok := charToKey(tt.c)
		if !ok {
			t.Errorf("%q: not mapped", tt.c)
			continue
		}
		if k.code != tt.code || k.shift != tt.shift {
			t.Errorf("%q = %+v, want code %d shift %v", tt.c, k, tt.code, tt.shift)
		}
	}
}

func TestStrokes(t *testing.T) {
	keys, ok := strokes("Hi, there!")
	if !ok {
		t.Fatal("plain ASCII should be typeable")
	}
	if len(keys) != 10 {
		t.Errorf("got %d strokes, want 10", len(keys))
	}

	for _, text := range []string{"naïve", "日本語", "emoji 🎤"} {
		if _, ok := strokes(text); ok {
			t.Errorf("%q should not be typeable", text)
		}
	}
}
