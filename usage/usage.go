package usage

import (
	"math"
	"sync"
	"time"
	"unicode/utf8"
)

// Pricing describes how recognized audio is billed.
type Pricing struct {
	PricePerChunk float64 // USD per billable chunk
	ChunkSeconds  float64 // length of one billable chunk
}

func DefaultPricing() Pricing {
	return Pricing{PricePerChunk: 0.006, ChunkSeconds: 15}
}

// Stats is a point-in-time copy of the session counters. The last three
// fields are derived when the snapshot is taken.
type Stats struct {
	TotalAudioSeconds  float64
	ChunksProcessed    int
	TotalCharacters    int
	TranscriptionCount int
	StartTime          time.Time

	ElapsedSeconds   float64
	BillableChunks   int
	EstimatedCostUSD float64
}

// BillableChunks rounds seconds up to whole chunks of chunkSeconds.
func BillableChunks(seconds, chunkSeconds float64) int {
	if seconds <= 0 || chunkSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / chunkSeconds))
}

// Accountant holds the usage counters of the active session. It is shared by
// the audio feed and the event dispatch goroutines.
type Accountant struct {
	pricing Pricing
	now     func() time.Time

	mu                 sync.Mutex
	totalAudioSeconds  float64
	chunksProcessed    int
	totalCharacters    int
	transcriptionCount int
	startTime          time.Time
}

func New(p Pricing) *Accountant {
	a := &Accountant{pricing: p, now: time.Now}
	a.startTime = a.now()
	return a
}

func (a *Accountant) Pricing() Pricing { return a.pricing }

func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalAudioSeconds = 0
	a.chunksProcessed = 0
	a.totalCharacters = 0
	a.transcriptionCount = 0
	a.startTime = a.now()
}

// RecordFrame accounts for one frame of audio handed to the backend.
func (a *Accountant) RecordFrame(seconds float64) {
	a.mu.Lock()
	a.totalAudioSeconds += seconds
	a.chunksProcessed++
	a.mu.Unlock()
}

// RecordTranscript tracks the longest transcript seen so far; backends resend
// the growing interim text of an utterance, so summing would overcount.
func (a *Accountant) RecordTranscript(text string, final bool) {
	n := utf8.RuneCountInString(text)
	a.mu.Lock()
	if n > a.totalCharacters {
		a.totalCharacters = n
	}
	if final {
		a.transcriptionCount++
	}
	a.mu.Unlock()
}

func (a *Accountant) Snapshot() Stats {
	a.mu.Lock()
	s := Stats{
		TotalAudioSeconds:  a.totalAudioSeconds,
		ChunksProcessed:    a.chunksProcessed,
		TotalCharacters:    a.totalCharacters,
		TranscriptionCount: a.transcriptionCount,
		StartTime:          a.startTime,
	}
	now := a.now()
	a.mu.Unlock()

	s.ElapsedSeconds = now.Sub(s.StartTime).Seconds()
	s.BillableChunks = BillableChunks(s.TotalAudioSeconds, a.pricing.ChunkSeconds)
	s.EstimatedCostUSD = float64(s.BillableChunks) * a.pricing.PricePerChunk
	return s
}
