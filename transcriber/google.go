package transcriber

import (
	"context"
	"fmt"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// Google streams to Cloud Speech-to-Text v1. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS (application default credentials).
type Google struct {
	client *speech.Client
}

func NewGoogle(ctx context.Context) (*Google, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return &Google{client: client}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Close() error { return g.client.Close() }

func (g *Google) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	client, err := g.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := client.Send(googleConfigRequest(cfg)); err != nil {
		cancel()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}
	return &googleStream{client: client, cancel: cancel}, nil
}

// googleConfigRequest builds the first request of a stream; every later
// request carries audio only.
func googleConfigRequest(cfg StreamConfig) *speechpb.StreamingRecognizeRequest {
	encoding := speechpb.RecognitionConfig_LINEAR16
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[cfg.Encoding]; ok {
		encoding = speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   encoding,
					SampleRateHertz:            int32(cfg.SampleRateHertz),
					LanguageCode:               cfg.LanguageCode,
					EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
					Model:                      cfg.Model,
				},
				InterimResults:  cfg.InterimResults,
				SingleUtterance: cfg.SingleUtterance,
			},
		},
	}
}

type googleStream struct {
	client    speechpb.Speech_StreamingRecognizeClient
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *googleStream) Send(pcm []byte) error {
	return s.client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
}

func (s *googleStream) CloseSend() error {
	return s.client.CloseSend()
}

func (s *googleStream) Recv() (Event, error) {
	resp, err := s.client.Recv()
	if err != nil {
		return Event{}, err
	}
	if st := resp.GetError(); st != nil && st.GetCode() != 0 {
		return Event{}, fmt.Errorf("google speech: %s (code %d)", st.GetMessage(), st.GetCode())
	}
	return googleEvent(resp), nil
}

// googleEvent maps the first alternative of the first result. Responses
// without one (speech events, endpointing notices) are empty.
func googleEvent(resp *speechpb.StreamingRecognizeResponse) Event {
	results := resp.GetResults()
	if len(results) == 0 {
		return Event{}
	}
	alts := results[0].GetAlternatives()
	if len(alts) == 0 {
		return Event{}
	}
	kind := EventInterim
	if results[0].GetIsFinal() {
		kind = EventFinal
	}
	return Event{Kind: kind, Text: alts[0].GetTranscript()}
}

func (s *googleStream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
