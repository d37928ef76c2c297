//go:build linux

package clipboard

import "speechtext/log"

// Linux evdev key codes.
// a=30, b=48, c=46, d=32, e=18, f=33, g=34, h=35, i=23, j=36,
// k=37, l=38, m=50, n=49, o=24, p=25, q=16, r=19, s=31, t=20,
// u=22, v=47, w=17, x=45, y=21, z=44
var keymap = [26]int{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36,
	37, 38, 50, 49, 24, 25, 16, 19, 31, 20,
	22, 47, 17, 45, 21, 44,
}

// 0=11, 1=2, 2=3, ..., 9=10
var nummap = [10]int{11, 2, 3, 4, 5, 6, 7, 8, 9, 10}

type keyStroke struct {
	code  int
	shift bool
}

var punctmap = map[rune]keyStroke{
	' ': {57, false}, '\n': {28, false}, '\t': {15, false},
	'.': {52, false}, ',': {51, false}, '/': {53, false},
	';': {39, false}, '\'': {40, false}, '[': {26, false},
	']': {27, false}, '-': {12, false}, '=': {13, false},
	'\\': {43, false}, '`': {41, false},
	'!': {2, true}, '@': {3, true}, '#': {4, true},
	'$': {5, true}, '%': {6, true}, '^': {7, true},
	'&': {8, true}, '*': {9, true}, '(': {10, true},
	')': {11, true}, '_': {12, true}, '+': {13, true},
	'{': {26, true}, '}': {27, true}, '|': {43, true},
	':': {39, true}, '"': {40, true}, '<': {51, true},
	'>': {52, true}, '?': {53, true}, '~': {41, true},
}

func charToKey(c rune) (keyStroke, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return keyStroke{keymap[c-'a'], false}, true
	case c >= 'A' && c <= 'Z':
		return keyStroke{keymap[c-'A'], true}, true
	case c >= '0' && c <= '9':
		return keyStroke{nummap[c-'0'], false}, true
	}
	k, ok := punctmap[c]
	return k, ok
}

// strokes maps text to key presses. ok is false when some character has no
// key on a US layout.
func strokes(text string) (keys []keyStroke, ok bool) {
	for _, c := range text {
		k, found := charToKey(c)
		if !found {
			return nil, false
		}
		keys = append(keys, k)
	}
	return keys, true
}

// Type sends text as individual key presses. Text with characters outside
// the US layout is pasted through the clipboard instead.
func Type(text string) error {
	keys, ok := strokes(text)
	if !ok {
		log.Info("text not typeable on a US layout, pasting instead")
		if err := Copy(text); err != nil {
			return err
		}
		return Paste()
	}

	if err := Init(); err != nil {
		return err
	}
	for _, k := range keys {
		kb.Clear()
		kb.SetKeys(k.code)
		kb.HasSHIFT(k.shift)
		if err := kb.Launching(); err != nil {
			kb.HasSHIFT(false)
			return err
		}
	}
	kb.HasSHIFT(false)
	return nil
}
