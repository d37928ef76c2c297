package audio

import (
	"context"
	"sync"
	"time"
)

// frameQueue is an unbounded single-consumer FIFO. push never blocks on
// capacity, so the capture callback keeps real-time cadence even when the
// consumer stalls; the cost is memory growth for the duration of the stall.
type frameQueue struct {
	mu     sync.Mutex
	frames []Frame
	notify chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{notify: make(chan struct{}, 1)}
}

// push appends f and returns the queue length after the append.
func (q *frameQueue) push(f Frame) int {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	n := len(q.frames)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return n
}

// pop waits up to timeout for the next frame.
func (q *frameQueue) pop(ctx context.Context, timeout time.Duration) (Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			f := q.frames[0]
			q.frames[0] = Frame{}
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return f, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return Frame{}, false
		case <-ctx.Done():
			return Frame{}, false
		}
	}
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
