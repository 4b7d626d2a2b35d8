package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(Options{Level: "debug", Format: "console", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("attempt recorded")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"attempt recorded"`) {
		t.Fatalf("expected json line in file, got %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
