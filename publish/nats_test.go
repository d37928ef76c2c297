package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"speechtext/usage"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func subscribe(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}
	return sub
}

func next(t *testing.T, sub *nats.Subscription) (string, Message) {
	t.Helper()
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no message: %v", err)
	}
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		t.Fatalf("bad payload %q: %v", msg.Data, err)
	}
	return msg.Subject, m
}

func TestPublishEvents(t *testing.T) {
	ns := startServer(t)
	sub := subscribe(t, ns.ClientURL(), "speechtext.>")

	p, err := Connect(ns.ClientURL(), "speechtext")
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return at }

	if err := p.Interim("s1", "hel"); err != nil {
		t.Fatal(err)
	}
	if err := p.Final("s1", "hello world"); err != nil {
		t.Fatal(err)
	}
	if err := p.Usage("s1", usage.Stats{TotalAudioSeconds: 31, ChunksProcessed: 10, BillableChunks: 3, EstimatedCostUSD: 0.018}); err != nil {
		t.Fatal(err)
	}
	p.Close()

	subject, m := next(t, sub)
	if subject != "speechtext.interim" || m.Type != "interim" || m.Text != "hel" || m.Session != "s1" {
		t.Errorf("interim: %s %+v", subject, m)
	}
	if !m.At.Equal(at) {
		t.Errorf("At = %v, want %v", m.At, at)
	}

	subject, m = next(t, sub)
	if subject != "speechtext.final" || m.Text != "hello world" {
		t.Errorf("final: %s %+v", subject, m)
	}

	subject, m = next(t, sub)
	if subject != "speechtext.usage" || m.Usage == nil {
		t.Fatalf("usage: %s %+v", subject, m)
	}
	if m.Usage.BillableChunks != 3 || m.Usage.AudioSeconds != 31 || m.Usage.Chunks != 10 {
		t.Errorf("usage payload = %+v", *m.Usage)
	}
	if m.Text != "" {
		t.Errorf("usage message carries text %q", m.Text)
	}
}

func TestConnectFailure(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1", "speechtext"); err == nil {
		t.Error("expected connection error")
	}
}

func TestCloseNil(t *testing.T) {
	var p *Publisher
	p.Close()
}
