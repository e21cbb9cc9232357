package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithSyncer("warn", "json", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("NewWithSyncer: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "kept" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewConsoleDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithSyncer("", "", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("NewWithSyncer: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	_ = logger.Sync()

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Fatal("debug entry written at info level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatal("info entry missing")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}
