package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFormats(t *testing.T) {
	tests := []struct {
		format string
		json   bool
	}{
		{"text", false},
		{"json", true},
		{"auto", true}, // a buffer is not a terminal
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: LevelInfo, Format: tt.format, Output: &buf})
			l.Info("built", "unit", "add")

			line := strings.TrimSpace(buf.String())
			var m map[string]any
			isJSON := json.Unmarshal([]byte(line), &m) == nil
			if isJSON != tt.json {
				t.Fatalf("json output = %v, want %v: %s", isJSON, tt.json, line)
			}
			if !strings.Contains(line, "add") {
				t.Fatalf("missing attribute: %s", line)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: LevelWarn, Format: "text", Output: &buf})
	defer Init(Config{Level: LevelError, Format: "text", Output: &bytes.Buffer{}})

	Debug("hidden")
	Info("hidden")
	Warn("shown")
	LogStep(Component("compiler"), "add", "compile")

	out := buf.String()
	if strings.Contains(out, "hidden") || strings.Contains(out, "compile") {
		t.Fatalf("filtered messages logged: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warning missing: %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: LevelDebug, Format: "text", Output: &buf})
	defer Init(Config{Level: LevelError, Format: "text", Output: &bytes.Buffer{}})

	LogStep(Component("loader"), "unit1", "discover", "functions", 3)
	out := buf.String()
	for _, want := range []string{"component=loader", "unit=unit1", "functions=3", "discover"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
