package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewDefaultLogger(WarnLevel, "text")
	log.SetOutput(buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Error("messages below the level must be suppressed")
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Error("messages at or above the level must be emitted")
	}
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewDefaultLogger(InfoLevel, "json")
	log.SetOutput(buf)

	log.Info("connected", String("addr", "127.0.0.1:1935"), Int("port", 1935))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["message"] != "connected" {
		t.Errorf("expected message connected, got %v", entry["message"])
	}
	if entry["addr"] != "127.0.0.1:1935" {
		t.Errorf("expected addr field, got %v", entry["addr"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level INFO, got %v", entry["level"])
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewDefaultLogger(InfoLevel, "text")
	log.SetOutput(buf)

	child := log.With(String("session", "abc"))
	child.Info("dispatched")

	if !strings.Contains(buf.String(), "session=abc") {
		t.Error("child logger must carry its fields")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
