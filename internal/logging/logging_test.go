package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, slog.LevelInfo, true)

	Component("receiver").Info("listening", "addr", "127.0.0.1:49002")
	Component("receiver").Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["component"] != "receiver" || entry["addr"] != "127.0.0.1:49002" || entry["msg"] != "listening" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["source"]; ok {
		t.Error("source should only be added at debug level")
	}
}

func TestInitTextDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, slog.LevelDebug, false)

	slog.Debug("via default", "k", 1)
	out := buf.String()
	if !strings.Contains(out, "msg=\"via default\"") || !strings.Contains(out, "source=") {
		t.Errorf("unexpected output %q", out)
	}
}
