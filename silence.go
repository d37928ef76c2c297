package main

import (
	"math"
	"time"

	"speechtext/audio"
)

const (
	silenceWarnAfter = 8 * time.Second
	voiceLevel       = 0.02 // peak amplitude, full scale = 1
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
)

// silenceMonitor watches a sliding window of frames and reports when the
// share of frames carrying voice drops below speechMinRatio.
type silenceMonitor struct {
	windowSz int

	ticks  int
	window []bool
	warned bool
}

func newSilenceMonitor(frame time.Duration) *silenceMonitor {
	if frame <= 0 {
		frame = 64 * time.Millisecond
	}
	windowSz := max(int(silenceWarnAfter/frame), 1)
	return &silenceMonitor{
		windowSz: windowSz,
		window:   make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.windowSz)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := range n {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.window[m.ticks%m.windowSz] = hasSpeech
	m.ticks++

	r := m.ratio()
	if m.ticks >= m.windowSz && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}

// Frame feeds one captured frame.
func (m *silenceMonitor) Frame(f audio.Frame) SilenceEvent {
	return m.Tick(peakLevel(f) >= voiceLevel)
}

func peakLevel(f audio.Frame) float64 {
	var peak float64
	for _, s := range f.Samples {
		peak = max(peak, math.Abs(float64(s))/32768)
	}
	return peak
}
