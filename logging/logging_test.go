package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, closeFn, err := New(Options{Level: "debug", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("model trained")
	if err := closeFn(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"model trained"`) {
		t.Fatalf("expected log line, got %s", content)
	}
}

func TestNewLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, closeFn, err := New(Options{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	closeFn()

	content, _ := os.ReadFile(path)
	if strings.Contains(string(content), "dropped") || !strings.Contains(string(content), "kept") {
		t.Fatalf("unexpected log content: %s", content)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
