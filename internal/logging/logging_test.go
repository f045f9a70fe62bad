package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cstudio.log")

	logger := New(Config{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	logger.Info("saved project", zap.String("project_id", "p1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), `"project_id":"p1"`) {
		t.Errorf("log file missing field, got %s", data)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cstudio.log")

	logger := New(Config{Level: "error", Format: "json", File: path})
	logger.Info("hidden")
	logger.Error("shown")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("info message written at error level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("error message missing")
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() returned nil")
	}
	l := zap.NewExample()
	if got := FromContext(WithLogger(context.Background(), l)); got != l {
		t.Error("FromContext() did not return the stored logger")
	}
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
}
