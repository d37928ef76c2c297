package audio

import (
	"encoding/binary"
	"errors"
	"strings"
)

const WAVHeaderSize = 44

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameSize  = 1024
	BitsPerSample     = 16
)

var (
	ErrDeviceNotFound  = errors.New("audio: device not found")
	ErrNoInputChannels = errors.New("audio: device has no input channels")
	ErrAlreadyStarted  = errors.New("audio: recorder already started")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether the microphone is a
// Bluetooth headset, which usually means narrowband audio.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives little-endian 16-bit PCM. data is only valid for the
// duration of the call.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	FrameSize  uint32 // preferred samples per callback, 0 = backend default
}

type DeviceInfo struct {
	Index         int
	ID            string // opaque platform-specific identifier
	Name          string
	InputChannels int
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Frame is one block of mono signed 16-bit samples. Frames are never
// modified after they leave the capture callback.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the frame length in seconds.
func (f Frame) Duration() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate)
}

// Bytes encodes the frame as LINEAR16 little-endian PCM.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ListInputDevices returns the devices that can record.
func ListInputDevices(ctx Context) ([]DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	var inputs []DeviceInfo
	for _, d := range devices {
		if d.InputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

// DeviceByIndex looks a device up by its enumeration index and checks that it
// can record.
func DeviceByIndex(ctx Context, index int) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Index != index {
			continue
		}
		if devices[i].InputChannels < 1 {
			return nil, ErrNoInputChannels
		}
		return &devices[i], nil
	}
	return nil, ErrDeviceNotFound
}
