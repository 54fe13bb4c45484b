package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("Test")
	l.SetOutput(&buf)
	l.SetLevel(WARN)

	l.Debugf("debug message")
	l.Infof("info message")
	l.Warnf("warn message")
	l.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN should be suppressed, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN and ERROR messages should be logged, got: %s", out)
	}
}

func TestLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("SafetyCache")
	l.SetOutput(&buf)

	l.Infof("hello %d", 42)

	out := buf.String()
	if !strings.Contains(out, "[SafetyCache]") {
		t.Errorf("expected component prefix in output, got: %s", out)
	}
	if !strings.Contains(out, "hello 42") {
		t.Errorf("expected formatted message in output, got: %s", out)
	}
}
