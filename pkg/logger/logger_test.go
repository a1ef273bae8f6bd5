package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(slog.LevelWarn, buf)

	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below min level, got %q", buf.String())
	}

	l.Warn("visible", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "visible") || !strings.Contains(out, "key=value") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	var l Logger = Nop{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
