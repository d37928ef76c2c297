package main

import (
	"fmt"
	"io"
	"sync"

	"speechtext/log"
	"speechtext/metrics"
	"speechtext/publish"
	"speechtext/usage"
)

// Sink abstracts the display layer so the TUI, the plain console output and
// the metrics and NATS exporters receive the same session events.
type Sink interface {
	SessionStart(info SessionInfo)
	Interim(text string)
	// Final reports a final result; output says whether it was sent to the
	// focused application.
	Final(text string, output bool)
	Usage(u usage.Stats)
	NoVoice(warn bool)
	SessionEnd(u usage.Stats)
}

type SessionInfo struct {
	Device   string
	Backend  string
	Language string
}

type sinks []Sink

func (s sinks) SessionStart(info SessionInfo) {
	for _, k := range s {
		k.SessionStart(info)
	}
}

func (s sinks) Interim(text string) {
	for _, k := range s {
		k.Interim(text)
	}
}

func (s sinks) Final(text string, output bool) {
	for _, k := range s {
		k.Final(text, output)
	}
}

func (s sinks) Usage(u usage.Stats) {
	for _, k := range s {
		k.Usage(u)
	}
}

func (s sinks) NoVoice(warn bool) {
	for _, k := range s {
		k.NoVoice(warn)
	}
}

func (s sinks) SessionEnd(u usage.Stats) {
	for _, k := range s {
		k.SessionEnd(u)
	}
}

// plainSink prints one line per result, for -tui=false and -test.
type plainSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newPlainSink(w io.Writer) *plainSink {
	return &plainSink{w: w}
}

func (p *plainSink) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *plainSink) SessionStart(info SessionInfo) {
	p.printf("Starting SpeechText...\n")
	p.printf("Using device: %s\n", info.Device)
	p.printf("Language: %s (%s)\n", info.Language, info.Backend)
	p.printf("Press Ctrl+C to stop\n")
}

func (p *plainSink) Interim(text string) {
	p.printf("  ... %s\n", text)
}

func (p *plainSink) Final(text string, output bool) {
	if output {
		p.printf("> %s [typed]\n", text)
		return
	}
	p.printf("> %s\n", text)
}

func (p *plainSink) Usage(usage.Stats) {}

func (p *plainSink) NoVoice(warn bool) {
	if warn {
		p.printf("warning: no voice detected, check the microphone\n")
	}
}

func (p *plainSink) SessionEnd(usage.Stats) {}

type metricsSink struct {
	m *metrics.Metrics
}

func (s metricsSink) SessionStart(SessionInfo) { s.m.SessionStarted() }
func (s metricsSink) Interim(string) { s.m.Interim() }
func (s metricsSink) Final(string, bool) { s.m.Final() }
func (s metricsSink) Usage(u usage.Stats) { s.m.ObserveUsage(u) }
func (s metricsSink) NoVoice(bool) {}
func (s metricsSink) SessionEnd(u usage.Stats) { s.m.SessionEnded(u) }

// natsSink publishes results under the id of the running session.
type natsSink struct {
	p       *publish.Publisher
	session func() string
}

func (s natsSink) report(kind string, err error) {
	if err != nil {
		log.Warnf("publish %s: %v", kind, err)
	}
}

func (s natsSink) SessionStart(SessionInfo) {}

func (s natsSink) Interim(text string) {
	s.report("interim", s.p.Interim(s.session(), text))
}

func (s natsSink) Final(text string, _ bool) {
	s.report("final", s.p.Final(s.session(), text))
}

func (s natsSink) Usage(u usage.Stats) {
	s.report("usage", s.p.Usage(s.session(), u))
}

func (s natsSink) NoVoice(bool) {}

func (s natsSink) SessionEnd(usage.Stats) {}
