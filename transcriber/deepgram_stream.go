package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

const deepgramEndpoint = "wss://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey   string
	endpoint string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey, endpoint: deepgramEndpoint}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (d *Deepgram) listenURL(cfg StreamConfig) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	q.Set("model", model)
	q.Set("encoding", strings.ToLower(cfg.Encoding))
	q.Set("channels", "1")
	if cfg.SampleRateHertz > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRateHertz))
	}
	if cfg.LanguageCode != "" {
		q.Set("language", cfg.LanguageCode)
	}
	q.Set("punctuate", strconv.FormatBool(cfg.EnableAutomaticPunctuation))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	u, err := d.listenURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, err
	}
	return &deepgramStream{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *deepgramStream) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

// CloseSend asks the server to flush pending results and close the socket.
func (s *deepgramStream) CloseSend() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

func (s *deepgramStream) Recv() (Event, error) {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Event{}, io.EOF
		}
		return Event{}, err
	}

	var resp deepgramStreamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Event{}, fmt.Errorf("decode deepgram message: %w", err)
	}
	return deepgramEvent(resp), nil
}

// Metadata, SpeechStarted and UtteranceEnd messages carry no transcript.
func deepgramEvent(resp deepgramStreamResponse) Event {
	if resp.Type != "" && resp.Type != "Results" {
		return Event{}
	}
	if len(resp.Channel.Alternatives) == 0 {
		return Event{}
	}
	text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	if text == "" {
		return Event{}
	}
	if resp.IsFinal || resp.SpeechFinal || resp.FromFinalize {
		return Event{Kind: EventFinal, Text: text}
	}
	return Event{Kind: EventInterim, Text: text}
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
