package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewWriterTagsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "tui", slog.LevelInfo)
	logger.Info("hello", "session", "default")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["subsystem"] != "tui" {
		t.Fatalf("unexpected subsystem: %v", entry["subsystem"])
	}
	if entry["session"] != "default" {
		t.Fatalf("unexpected session attr: %v", entry["session"])
	}
}

func TestNewFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "volterm.log")
	logger, closer, err := NewFile("tui", path, slog.LevelDebug)
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	logger.Debug("first")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !bytes.Contains(data, []byte(`"msg":"first"`)) {
		t.Fatalf("log line missing: %s", data)
	}
}

func TestNewFileEmptyPathDiscards(t *testing.T) {
	logger, closer, err := NewFile("tui", "  ", slog.LevelInfo)
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	logger.Info("dropped")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", raw, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
