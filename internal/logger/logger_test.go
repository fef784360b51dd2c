package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"none":    LogLevelNone,
		"ERROR":   LogLevelError,
		"warn":    LogLevelWarning,
		"warning": LogLevelWarning,
		" info ":  LogLevelInfo,
		"debug":   LogLevelDebug,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(log.New(&buf, "", 0), LogLevelWarning)

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below level leaked: %q", out)
	}
	if !strings.Contains(out, "WARN: warn 3") {
		t.Errorf("missing warning: %q", out)
	}
	if !strings.Contains(out, "ERROR: error 4") {
		t.Errorf("missing error: %q", out)
	}
}

func TestWithTag(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(log.New(&buf, "", 0), LogLevelDebug).WithTag("axis")

	l.Debugf("value=%d", 7)
	if got := strings.TrimSpace(buf.String()); got != "[axis] DEBUG: value=7" {
		t.Errorf("unexpected output %q", got)
	}
	if l.Level() != LogLevelDebug {
		t.Errorf("tagged logger lost level: %v", l.Level())
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	l := NewLogger(nil, LogLevelDebug)
	l.Infof("nothing to see")
}
