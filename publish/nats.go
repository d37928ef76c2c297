package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"speechtext/log"
	"speechtext/usage"
)

const flushTimeout = 2 * time.Second

type Message struct {
	Type    string        `json:"type"` // interim | final | usage
	Session string        `json:"session"`
	Text    string        `json:"text,omitempty"`
	Usage   *UsagePayload `json:"usage,omitempty"`
	At      time.Time     `json:"at"`
}

type UsagePayload struct {
	AudioSeconds     float64 `json:"audio_seconds"`
	Chunks           int     `json:"chunks"`
	Characters       int     `json:"characters"`
	Transcriptions   int     `json:"transcriptions"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	BillableChunks   int     `json:"billable_chunks"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Publisher fans recognition events out on NATS subjects
// <subject>.interim, <subject>.final and <subject>.usage.
type Publisher struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("speechtext"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Infof("publishing to nats %s on %s.*", url, subject)
	return &Publisher{conn: conn, subject: subject, now: time.Now}, nil
}

func (p *Publisher) publish(kind string, m Message) error {
	m.Type = kind
	m.At = p.now().UTC()
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject+"."+kind, data); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

func (p *Publisher) Interim(session, text string) error {
	return p.publish("interim", Message{Session: session, Text: text})
}

func (p *Publisher) Final(session, text string) error {
	return p.publish("final", Message{Session: session, Text: text})
}

func (p *Publisher) Usage(session string, s usage.Stats) error {
	return p.publish("usage", Message{Session: session, Usage: &UsagePayload{
		AudioSeconds:     s.TotalAudioSeconds,
		Chunks:           s.ChunksProcessed,
		Characters:       s.TotalCharacters,
		Transcriptions:   s.TranscriptionCount,
		ElapsedSeconds:   s.ElapsedSeconds,
		BillableChunks:   s.BillableChunks,
		EstimatedCostUSD: s.EstimatedCostUSD,
	}})
}

// Close delivers buffered messages and disconnects.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.FlushTimeout(flushTimeout); err != nil {
		log.Warnf("nats flush: %v", err)
	}
	p.conn.Close()
}
