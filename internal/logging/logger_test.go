package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"climatemap-server/internal/config"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}
	logger := newWithWriter(&buf, cfg, "1.2.3", "climatemap")

	logger.Debug("hidden")
	logger.Info("frame rendered", "offset", 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines; want 1 (debug must be filtered): %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range map[string]any{
		"msg":     "frame rendered",
		"app":     "climatemap",
		"version": "1.2.3",
		"env":     "prod",
		"offset":  float64(4),
	} {
		if rec[key] != want {
			t.Errorf("%s = %v; want %v", key, rec[key], want)
		}
	}
}

func TestNew_DevWritesText(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}
	logger := newWithWriter(&buf, cfg, "dev", "climatemap")

	logger.Debug("tick", "offset", 1)

	out := buf.String()
	if !strings.Contains(out, "tick") || !strings.Contains(out, "climatemap") {
		t.Errorf("dev output missing message or app: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output should not be JSON: %q", out)
	}
}
