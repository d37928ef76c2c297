package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
	level    = zerolog.InfoLevel
)

const diagFileName = "diagnostics_log.txt"

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: SPEECHTEXT_LOG_PATH environment variable
	if envPath := os.Getenv("SPEECHTEXT_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel accepts zerolog level names ("debug", "info", ...).
func SetLevel(name string) error {
	l, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	logMu.Lock()
	level = l
	if logReady {
		diagLog = diagLog.Level(l)
	}
	logMu.Unlock()
	return nil
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady = false
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Debug(msg string) {
	if ready() {
		diagLog.Debug().Msg(msg)
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Transcript records recognized text at debug level only.
func Transcript(session string, final bool, text string) {
	if !ready() {
		return
	}
	diagLog.Debug().
		Str("session", session).
		Bool("final", final).
		Str("text", text).
		Msg("transcript")
}

type StreamMetricsData struct {
	Session      string
	Backend      string
	ConnectMs    float64
	TotalMs      float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	RecvEmpty    int
}

func StreamMetrics(m StreamMetricsData) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", m.Session).
		Str("backend", m.Backend).
		Float64("connect_ms", m.ConnectMs).
		Float64("total_ms", m.TotalMs).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Int("recv_interim", m.RecvInterim).
		Int("recv_empty", m.RecvEmpty).
		Msg("stream_transcription")
}

func SessionStart(session, backend, language string, sampleRate int) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("backend", backend).
		Str("language", language).
		Int("sample_rate", sampleRate).
		Msg("session_start")
}

type UsageData struct {
	AudioS         float64
	Chunks         int
	Characters     int
	Transcriptions int
	ElapsedS       float64
	BillableChunks int
	CostUSD        float64
}

func SessionEnd(session string, u UsageData) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("session", session).
		Float64("audio_s", u.AudioS).
		Int("chunks", u.Chunks).
		Int("characters", u.Characters).
		Int("transcriptions", u.Transcriptions).
		Float64("elapsed_s", u.ElapsedS).
		Int("billable_chunks", u.BillableChunks).
		Float64("cost_usd", u.CostUSD).
		Msg("session_end")
}

// CaptureBacklog records that the frame queue grew to n unconsumed frames.
func CaptureBacklog(n int) {
	if !ready() {
		return
	}
	diagLog.Warn().Int("frames", n).Msg("capture_backlog")
}
