package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestConsoleHandlerFoldsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	NewComponentLogger(logger, "cache").Info("item finalised", String("filename", "foo.mxf"))

	line := buf.String()
	if !strings.Contains(line, "INFO cache: item finalised") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "filename=foo.mxf") {
		t.Fatalf("missing attr in %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component attr should be folded into prefix: %q", line)
	}
}

func TestConsoleHandlerQuotesAwkwardValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar)))

	logger.Warn("status", String("message", "Pause source VTR failed"))
	if !strings.Contains(buf.String(), `message="Pause source VTR failed"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	handler := newConsoleHandler(&buf, lvl)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	logger := slog.New(handler)
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("level filtering wrong: %q", out)
	}
}

func TestFormatValueKinds(t *testing.T) {
	cases := []struct {
		value slog.Value
		want  string
	}{
		{slog.IntValue(7), "7"},
		{slog.BoolValue(true), "true"},
		{slog.DurationValue(2 * time.Second), "2s"},
		{slog.StringValue(""), `""`},
	}
	for _, tc := range cases {
		if got := formatValue(tc.value); got != tc.want {
			t.Fatalf("formatValue(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}
