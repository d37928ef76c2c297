package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func rampPCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%2000-1000)))
	}
	return pcm
}

func collect(t *testing.T, r *Recorder, ctx context.Context) []Frame {
	t.Helper()
	var frames []Frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range r.Frames(ctx) {
			frames = append(frames, f)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Frames did not terminate")
	}
	return frames
}

func TestRecorderFiveFrames(t *testing.T) {
	fake := NewFakeContextPCM(rampPCM(5*1024), false)
	r := NewRecorder(fake, RecorderConfig{DeviceIndex: 0, SampleRate: 16000, Channels: 1, FrameSize: 1024})

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()

	frames := collect(t, r, context.Background())
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	var total float64
	for _, f := range frames {
		if len(f.Samples) != 1024 {
			t.Errorf("frame has %d samples, want 1024", len(f.Samples))
		}
		total += f.Duration()
	}
	if math.Abs(total-0.32) > 1e-9 {
		t.Errorf("total duration = %v, want 0.32", total)
	}
}

func TestRecorderPreservesOrder(t *testing.T) {
	pcm := rampPCM(3 * 256)
	fake := NewFakeContextPCM(pcm, false)
	r := NewRecorder(fake, RecorderConfig{FrameSize: 256})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Stop()

	var got []byte
	for _, f := range collect(t, r, context.Background()) {
		got = append(got, f.Bytes()...)
	}
	if string(got) != string(pcm) {
		t.Error("frames out of order or corrupted")
	}
}

func TestRecorderFlushesPartialFrameOnStop(t *testing.T) {
	fake := NewFakeContextPCM(rampPCM(1024+100), false)
	r := NewRecorder(fake, RecorderConfig{FrameSize: 1024})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Stop()

	frames := collect(t, r, context.Background())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(frames[1].Samples) != 100 {
		t.Errorf("tail frame has %d samples, want 100", len(frames[1].Samples))
	}
}

func TestRecorderDeliversQueuedFramesAfterStop(t *testing.T) {
	fake := NewFakeContextPCM(rampPCM(40*1024), false)
	r := NewRecorder(fake, RecorderConfig{FrameSize: 1024})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var got int
	for range r.Frames(ctx) {
		got++
		if got == 3 {
			r.Stop()
		}
	}
	if got != 40 {
		t.Errorf("got %d frames, want all 40", got)
	}
}

func TestRecorderRealtimeStop(t *testing.T) {
	fake := NewFakeContextPCM(rampPCM(2048), true)
	r := NewRecorder(fake, RecorderConfig{FrameSize: 512})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var frames []Frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range r.Frames(context.Background()) {
			mu.Lock()
			frames = append(frames, f)
			mu.Unlock()
		}
	}()

	time.Sleep(200 * time.Millisecond)
	r.Stop()
	r.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Frames did not end after Stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(frames) < 4 {
		t.Errorf("got %d frames, want at least the 4 replayed", len(frames))
	}
}

func TestRecorderFramesHonoursCancel(t *testing.T) {
	fake := NewFakeContextPCM(nil, true)
	r := NewRecorder(fake, RecorderConfig{})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	collect(t, r, ctx)
}

func TestRecorderStartErrors(t *testing.T) {
	fake := NewFakeContextPCM(nil, false)
	fake.SetDevices([]DeviceInfo{
		{Index: 0, Name: "speakers", InputChannels: 0},
		{Index: 1, Name: "mic", InputChannels: 2},
	})

	for _, tt := range []struct {
		name  string
		index int
		want  error
	}{
		{"output only", 0, ErrNoInputChannels},
		{"missing", 7, ErrDeviceNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(fake, RecorderConfig{DeviceIndex: tt.index})
			err := r.Start()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start() = %v, want %v", err, tt.want)
			}
			// A failed start yields an empty sequence.
			if n := len(collect(t, r, context.Background())); n != 0 {
				t.Errorf("got %d frames from failed recorder", n)
			}
		})
	}

	r := NewRecorder(fake, RecorderConfig{DeviceIndex: 1})
	if err := r.Start(); err != nil {
		t.Fatalf("Start on input device: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
	r.Stop()
}

func TestRecorderRestart(t *testing.T) {
	fake := NewFakeContextPCM(rampPCM(2*1024), false)
	r := NewRecorder(fake, RecorderConfig{FrameSize: 1024})

	for run := range 2 {
		if err := r.Start(); err != nil {
			t.Fatalf("run %d: Start: %v", run, err)
		}
		r.Stop()
		if n := len(collect(t, r, context.Background())); n != 2 {
			t.Errorf("run %d: got %d frames, want 2", run, n)
		}
	}
}

func TestListInputDevices(t *testing.T) {
	fake := NewFakeContextPCM(nil, false)
	fake.SetDevices([]DeviceInfo{
		{Index: 0, Name: "HDMI out", InputChannels: 0},
		{Index: 1, Name: "USB mic", InputChannels: 1},
		{Index: 2, Name: "AirPods Pro", InputChannels: 1},
	})
	got, err := ListInputDevices(fake)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("ListInputDevices = %+v", got)
	}
	if !IsBluetooth(got[1].Name) || IsBluetooth(got[0].Name) {
		t.Error("bluetooth detection mismatch")
	}
}

func TestFrameBytes(t *testing.T) {
	f := Frame{Samples: []int16{1, -1, 256}, SampleRate: 16000}
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if got := f.Bytes(); string(got) != string(want) {
		t.Errorf("Bytes() = %x, want %x", got, want)
	}
}
