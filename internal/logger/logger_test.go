package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGetForComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitializeWriter("info", "json", &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := GetForComponent("trade")
	l.Info().Str("pool_id", "p1").Msg("trade executed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "trade" || line["pool_id"] != "p1" {
		t.Errorf("missing fields in %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Error("expected a timestamp field")
	}
}

func TestInitialize_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitializeWriter("error", "json", &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Logger.Warn().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected warn to be filtered at error level, got %q", buf.String())
	}
}
