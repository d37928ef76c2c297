package audio

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"speechtext/log"
)

const (
	framePollTimeout = 100 * time.Millisecond
	backlogWarnStart = 64 // frames, about 4s at 16kHz/1024
)

type RecorderConfig struct {
	DeviceIndex int // -1 selects the system default device
	SampleRate  int
	Channels    int
	FrameSize   int // samples per Frame
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		FrameSize:  DefaultFrameSize,
	}
}

// Recorder captures fixed-size frames from one input device. The capture
// callback only copies and enqueues; frames are consumed through Frames.
type Recorder struct {
	actx Context
	cfg  RecorderConfig

	mu       sync.Mutex
	capture  CaptureDevice
	queue    *frameQueue
	stopped  chan struct{}
	stopOnce *sync.Once

	// Touched only from the capture callback, or after the device stopped.
	pending     []int16
	backlogWarn int
}

func NewRecorder(actx Context, cfg RecorderConfig) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	return &Recorder{actx: actx, cfg: cfg}
}

func (r *Recorder) Config() RecorderConfig { return r.cfg }

// Start opens the configured device and begins capturing. A failed open
// leaves the recorder stopped.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return ErrAlreadyStarted
	}

	var device *DeviceInfo
	if r.cfg.DeviceIndex >= 0 {
		d, err := DeviceByIndex(r.actx, r.cfg.DeviceIndex)
		if err != nil {
			return fmt.Errorf("device %d: %w", r.cfg.DeviceIndex, err)
		}
		device = d
	}

	capture, err := r.actx.NewCapture(device, CaptureConfig{
		SampleRate: uint32(r.cfg.SampleRate),
		Channels:   uint32(r.cfg.Channels),
		FrameSize:  uint32(r.cfg.FrameSize),
	})
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}

	queue := newFrameQueue()
	r.pending = make([]int16, 0, r.cfg.FrameSize)
	r.backlogWarn = backlogWarnStart

	capture.SetCallback(func(data []byte, _ uint32) {
		r.onData(queue, data)
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	log.Info("recording_device: " + capture.DeviceName())
	r.capture = capture
	r.queue = queue
	r.stopped = make(chan struct{})
	r.stopOnce = &sync.Once{}
	return nil
}

func (r *Recorder) onData(queue *frameQueue, data []byte) {
	for i := 0; i+1 < len(data); i += 2 {
		r.pending = append(r.pending, int16(uint16(data[i])|uint16(data[i+1])<<8))
		if len(r.pending) == r.cfg.FrameSize {
			r.enqueue(queue)
		}
	}
}

func (r *Recorder) enqueue(queue *frameQueue) {
	samples := make([]int16, len(r.pending))
	copy(samples, r.pending)
	r.pending = r.pending[:0]

	if n := queue.push(Frame{Samples: samples, SampleRate: r.cfg.SampleRate}); n >= r.backlogWarn {
		r.backlogWarn *= 2
		go log.CaptureBacklog(n)
	}
}

// Stop halts capture and releases the device. Samples captured before Stop
// stay queued for Frames; a partial trailing frame is flushed as a shorter
// frame. Safe to call repeatedly and from any goroutine.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return
	}

	r.capture.Stop()
	r.capture.ClearCallback()
	r.capture.Close()
	r.capture = nil

	if len(r.pending) > 0 {
		r.enqueue(r.queue)
	}
	r.stopOnce.Do(func() { close(r.stopped) })
	log.Info("recording_stop")
}

// Frames yields captured frames in capture order. The sequence ends when ctx
// is done, or once the recorder is stopped and every queued frame has been
// yielded. Each call binds to the capture started most recently.
func (r *Recorder) Frames(ctx context.Context) iter.Seq[Frame] {
	r.mu.Lock()
	queue, stopped := r.queue, r.stopped
	r.mu.Unlock()

	return func(yield func(Frame) bool) {
		if queue == nil {
			return
		}
		for ctx.Err() == nil {
			if f, ok := queue.pop(ctx, framePollTimeout); ok {
				if !yield(f) {
					return
				}
				continue
			}
			select {
			case <-stopped:
				if queue.len() == 0 {
					return
				}
			default:
			}
		}
	}
}
