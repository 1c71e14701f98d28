package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"bussola/internal/config"
)

func withStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = orig })
	return &buf
}

func TestNew_TeesAndFiltersByLevel(t *testing.T) {
	out := withStderr(t)
	var tee bytes.Buffer
	log, err := New(config.LogConfig{Level: "warn"}, &tee)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("hidden")
	log.Warnw("sensor silent", "cycles", 21)
	_ = log.Sync()

	for name, b := range map[string]*bytes.Buffer{"stderr": out, "tee": &tee} {
		s := b.String()
		if strings.Contains(s, "hidden") {
			t.Fatalf("%s has info line: %q", name, s)
		}
		if !strings.Contains(s, "sensor silent") || !strings.Contains(s, `"cycles": 21`) {
			t.Fatalf("%s=%q", name, s)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	out := withStderr(t)
	log, err := New(config.LogConfig{Format: "json"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("ready", "addr", "0x0D")
	_ = log.Sync()

	var m map[string]any
	if err := json.Unmarshal(out.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", out.String(), err)
	}
	if m["msg"] != "ready" || m["addr"] != "0x0D" || m["level"] != "info" {
		t.Fatalf("got=%v", m)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(config.LogConfig{Format: "xml"}, nil); err == nil {
		t.Fatalf("expected format error")
	}
}
