package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLoggerState(t *testing.T) {
	t.Helper()
	logMutex.Lock()
	logMessages = nil
	logMutex.Unlock()

	prevColors := useColors
	prevQuiet := quietMode
	t.Cleanup(func() {
		useColors = prevColors
		quietMode = prevQuiet
	})
	useColors = false
	quietMode = false
}

func TestColorize(t *testing.T) {
	resetLoggerState(t)

	useColors = true
	if got := colorize(Red, "boom"); got != Red+"boom"+Reset {
		t.Errorf("Expected colored text, got %q", got)
	}

	useColors = false
	if got := colorize(Red, "boom"); got != "boom" {
		t.Errorf("Expected plain text, got %q", got)
	}
}

func TestSetColorModeRespectsNoColor(t *testing.T) {
	resetLoggerState(t)
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "")

	SetColorMode(true)
	if useColors {
		t.Error("Expected colors disabled when NO_COLOR is set")
	}
}

func TestSetColorModeForceColor(t *testing.T) {
	resetLoggerState(t)
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "1")

	SetColorMode(true)
	if !useColors {
		t.Error("Expected colors enabled when FORCE_COLOR is set")
	}

	SetColorMode(false)
	if useColors {
		t.Error("Expected colors disabled when requested off")
	}
}

func TestQuietModeSuppressesStorage(t *testing.T) {
	resetLoggerState(t)

	SetQuietMode(true)
	Info("hidden")
	Warning("hidden too")
	SetQuietMode(false)

	if got := GetStoredMessages(); len(got) != 0 {
		t.Errorf("Expected no stored messages in quiet mode, got %d", len(got))
	}
}

func TestStoredMessages(t *testing.T) {
	resetLoggerState(t)

	Info("first")
	Error("second")

	messages := GetStoredMessages()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Message != "first" || messages[0].Color != Cyan {
		t.Errorf("Unexpected first message: %+v", messages[0])
	}
	if messages[1].Message != "second" || messages[1].Color != Red {
		t.Errorf("Unexpected second message: %+v", messages[1])
	}
	if messages[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestGetStoredMessagesReturnsCopy(t *testing.T) {
	resetLoggerState(t)

	Info("original")

	messages := GetStoredMessages()
	messages[0].Message = "mutated"

	if again := GetStoredMessages(); again[0].Message != "original" {
		t.Errorf("Expected stored message unchanged, got %q", again[0].Message)
	}
}

func TestSaveLogsToFile(t *testing.T) {
	resetLoggerState(t)

	Info("line one")
	Success("line two")

	path := filepath.Join(t.TempDir(), "demux.log")
	if err := SaveLogsToFile(path); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected to read log file, got %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "line one") || !strings.Contains(content, "line two") {
		t.Errorf("Expected both messages in log file, got %q", content)
	}
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 2 {
		t.Errorf("Expected 2 log lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[") {
		t.Errorf("Expected timestamp prefix, got %q", lines[0])
	}
}

func TestSaveLogsToFileBadPath(t *testing.T) {
	resetLoggerState(t)

	if err := SaveLogsToFile(filepath.Join(t.TempDir(), "missing", "demux.log")); err == nil {
		t.Error("Expected error for unwritable path")
	}
}
