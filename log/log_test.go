package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() {
		Close()
		SetDir("")
		_ = SetLevel("info")
	})
	return tmp
}

func readDiag(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, diagFileName))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("SPEECHTEXT_LOG_PATH", "/tmp/speechtext-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/speechtext-env-log" {
		t.Errorf("got %q, want /tmp/speechtext-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("SPEECHTEXT_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "speechtext") {
		t.Errorf("default directory %q does not mention speechtext", got)
	}
}

func TestHelpersBeforeInitAreNoops(t *testing.T) {
	Info("ignored")
	Errorf("ignored %d", 1)
	SessionEnd("s", UsageData{})
}

func TestInitCreatesDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(tmp, diagFileName)); err != nil {
		t.Errorf("%s not created: %v", diagFileName, err)
	}
}

func TestSessionEvents(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("abc", "google", "en-US", 16000)
	SessionEnd("abc", UsageData{AudioS: 31, BillableChunks: 3, CostUSD: 0.018})
	Close()

	out := readDiag(t, tmp)
	for _, want := range []string{"session_start", "backend=google", "session_end", "billable_chunks=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q:\n%s", want, out)
		}
	}
}

func TestTranscriptOnlyAtDebug(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Transcript("abc", true, "secret words")
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	Transcript("abc", true, "visible words")
	Close()

	out := readDiag(t, tmp)
	if strings.Contains(out, "secret words") {
		t.Error("transcript logged at info level")
	}
	if !strings.Contains(out, "visible words") {
		t.Error("transcript missing at debug level")
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}
