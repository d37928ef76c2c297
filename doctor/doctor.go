package doctor

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"speechtext/audio"
	"speechtext/clipboard"
	"speechtext/transcriber"
)

type Options struct {
	Backend  string
	Language string
	Device   int
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("speechtext doctor - interactive system diagnostics")
	fmt.Println("===================================================")

	allPass := true
	if !checkDevices(opts) {
		allPass = false
	}
	if allPass && !checkCredentials(opts) {
		allPass = false
	}
	if allPass && !checkRecognition(opts) {
		allPass = false
	}
	if allPass && !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkDevices(opts Options) bool {
	fmt.Println()
	fmt.Println("[1/4] Audio input devices")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()

	devices, err := audio.ListInputDevices(actx)
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no input devices found")
		return false
	}
	for _, d := range devices {
		marker := " "
		if d.Index == opts.Device {
			marker = "*"
		}
		fmt.Printf("  %s %d: %s (%d input channels)\n", marker, d.Index, d.Name, d.InputChannels)
		if audio.IsBluetooth(d.Name) {
			fmt.Println("      Bluetooth headset, expect reduced accuracy")
		}
	}

	if opts.Device >= 0 {
		if _, err := audio.DeviceByIndex(actx, opts.Device); err != nil {
			fmt.Printf("  FAIL: device %d: %v\n", opts.Device, err)
			return false
		}
	}
	fmt.Println("  PASS: input device available")
	return true
}

func checkCredentials(opts Options) bool {
	fmt.Println()
	fmt.Println("[2/4] Recognition credentials")

	ok := true
	for _, name := range []string{"google", "deepgram"} {
		err := transcriber.CheckCredentials(name)
		switch {
		case err == nil:
			fmt.Printf("  %s: OK\n", name)
		case name == opts.Backend:
			fmt.Printf("  FAIL: %s: %v\n", name, err)
			ok = false
		default:
			fmt.Printf("  %s: not configured (%v)\n", name, err)
		}
	}
	if ok {
		fmt.Printf("  PASS: credentials for %s found\n", opts.Backend)
	}
	return ok
}

func checkRecognition(opts Options) bool {
	fmt.Println()
	fmt.Println("[3/4] Microphone and recognition")

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer actx.Close()

	ctx := context.Background()
	backend, err := transcriber.NewBackend(ctx, opts.Backend)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	cfg := audio.DefaultRecorderConfig()
	cfg.DeviceIndex = opts.Device
	rec := audio.NewRecorder(actx, cfg)

	tcfg := transcriber.DefaultConfig()
	tcfg.Stream.LanguageCode = opts.Language
	tcfg.Stream.SampleRateHertz = cfg.SampleRate
	tr := transcriber.New(backend, tcfg, nil)

	fmt.Print("Press Enter and speak for 4 seconds...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	if err := rec.Start(); err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	time.AfterFunc(4*time.Second, rec.Stop)

	var meter levelMeter
	var finals []string
	frames := func(yield func(audio.Frame) bool) {
		for f := range rec.Frames(ctx) {
			meter.add(f)
			if !yield(f) {
				return
			}
		}
	}
	fmt.Print("  Recording")
	tr.Transcribe(ctx, frames, transcriber.Handlers{
		OnInterim: func(string) { fmt.Print(".") },
		OnFinal:   func(text string) { finals = append(finals, text) },
	})
	rec.Stop()
	fmt.Println(" done")

	u := tr.Usage()
	fmt.Printf("  Audio: %.1fs in %d frames, peak %.0f dBFS, rms %.0f dBFS\n",
		u.TotalAudioSeconds, u.ChunksProcessed, meter.peakDB(), meter.rmsDB())
	if u.ChunksProcessed == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	if meter.peakDB() < silenceDB {
		fmt.Println("  FAIL: input is silent, check the microphone and its volume")
		return false
	}

	text := strings.TrimSpace(strings.Join(finals, " "))
	if text == "" {
		text = "(no speech recognized)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	fmt.Print("Is this correct? [y/n]: ")
	if !confirm() {
		fmt.Println("  FAIL: transcription not confirmed")
		return false
	}
	fmt.Println("  PASS: transcription verified by user")
	return true
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/4] Clipboard and paste")

	msg, err := clipboard.Verify()
	if err != nil {
		fmt.Printf("  FAIL: keystroke output: %v\n", err)
		fmt.Println("  On Linux: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}
	fmt.Printf("  %s\n", msg)

	sentinel := fmt.Sprintf("speechtext-preserve-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		return false
	}

	fmt.Println("Focus on a text editor window...")
	for i := 5; i > 0; i-- {
		fmt.Printf("  %d...\n", i)
		time.Sleep(time.Second)
	}

	w := clipboard.NewWriter(clipboard.DefaultRestoreDelay)
	if err := w.Output("speechtext-doctor-test", true); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	resetTerminal()
	fmt.Println()
	fmt.Print("Did the text \"speechtext-doctor-test\" appear? [y/n]: ")
	if !confirm() {
		fmt.Println("  FAIL: clipboard/paste not confirmed")
		return false
	}

	restored, err := clipboard.Read()
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard after restore: %v\n", err)
		return false
	}
	if restored != sentinel {
		fmt.Printf("  FAIL: clipboard not preserved (got %q, want %q)\n", restored, sentinel)
		return false
	}
	fmt.Println("  PASS: paste and clipboard preservation verified")
	return true
}

func confirm() bool {
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

const silenceDB = -60.0

type levelMeter struct {
	peak    float64
	sumSq   float64
	samples int
}

func (m *levelMeter) add(f audio.Frame) {
	for _, s := range f.Samples {
		v := math.Abs(float64(s)) / 32768
		m.peak = max(m.peak, v)
		m.sumSq += v * v
	}
	m.samples += len(f.Samples)
}

func toDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func (m *levelMeter) peakDB() float64 { return toDB(m.peak) }

func (m *levelMeter) rmsDB() float64 {
	if m.samples == 0 {
		return math.Inf(-1)
	}
	return toDB(math.Sqrt(m.sumSq / float64(m.samples)))
}
