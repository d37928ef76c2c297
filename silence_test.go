package main

import (
	"testing"
	"time"

	"speechtext/audio"
)

// 100ms frames give an 80 frame window.
func newTestMonitor() *silenceMonitor {
	return newSilenceMonitor(100 * time.Millisecond)
}

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for range n {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := newTestMonitor()
	for i := range 79 {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
	if ev := m.Tick(false); ev != SilenceNone {
		t.Fatalf("warning repeated: %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newTestMonitor()
	feedN(m, false, 80)

	// 25% of the 80 frame window is 20 frames of speech
	for i := range 19 {
		if ev := m.Tick(true); ev != SilenceNone {
			t.Fatalf("cleared early at speech frame %d", i)
		}
	}
	if ev := m.Tick(true); ev != SilenceWarnClear {
		t.Fatalf("expected SilenceWarnClear, got %d", ev)
	}
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newTestMonitor()
	for i := range 300 {
		if ev := m.Tick(i%5 == 0); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
}

func TestSilenceMonitorFrameLevel(t *testing.T) {
	m := newTestMonitor()
	loud := audio.Frame{Samples: []int16{0, 12000, -3000}, SampleRate: 16000}
	quiet := audio.Frame{Samples: []int16{10, -20, 30}, SampleRate: 16000}

	if got := peakLevel(loud); got < voiceLevel {
		t.Errorf("loud frame peak %v below voice level", got)
	}
	if got := peakLevel(quiet); got >= voiceLevel {
		t.Errorf("quiet frame peak %v above voice level", got)
	}

	var last SilenceEvent
	for range 80 {
		last = m.Frame(quiet)
	}
	if last != SilenceWarn {
		t.Fatalf("80 quiet frames: got %d, want SilenceWarn", last)
	}
}
