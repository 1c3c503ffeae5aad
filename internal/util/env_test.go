package util

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SLEEPY_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SLEEPY_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SLEEPY_TEST_INT", " 4 ")
	if got := ParseIntEnv("SLEEPY_TEST_INT", 1); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	t.Setenv("SLEEPY_TEST_INT", "four")
	if got := ParseIntEnv("SLEEPY_TEST_INT", 1); got != 1 {
		t.Errorf("expected default 1, got %d", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("SLEEPY_TEST_FLOAT", "0.3")
	if got := ParseFloatEnv("SLEEPY_TEST_FLOAT", 0.8); got != 0.3 {
		t.Errorf("expected 0.3, got %v", got)
	}
	t.Setenv("SLEEPY_TEST_FLOAT", "warm")
	if got := ParseFloatEnv("SLEEPY_TEST_FLOAT", 0.8); got != 0.8 {
		t.Errorf("expected default, got %v", got)
	}
}

func TestParseListEnv(t *testing.T) {
	t.Setenv("SLEEPY_TEST_LIST", " a, ,b ,c,")
	if diff := cmp.Diff([]string{"a", "b", "c"}, ParseListEnv("SLEEPY_TEST_LIST", nil)); diff != "" {
		t.Errorf("ParseListEnv mismatch (-want +got):\n%s", diff)
	}
	t.Setenv("SLEEPY_TEST_LIST", " , ")
	def := []string{"x"}
	if diff := cmp.Diff(def, ParseListEnv("SLEEPY_TEST_LIST", def)); diff != "" {
		t.Errorf("expected default (-want +got):\n%s", diff)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		wantErr  bool
	}{
		{"150-220", 150, 220, false},
		{" 250 - 320 ", 250, 320, false},
		{"5-5", 5, 5, false},
		{"300", 0, 0, true},
		{"10-5", 0, 0, true},
		{"a-b", 0, 0, true},
	}
	for _, tt := range tests {
		lo, hi, err := ParseRange(tt.in)
		if (err != nil) != tt.wantErr || lo != tt.min || hi != tt.max {
			t.Errorf("ParseRange(%q) = %d, %d, %v", tt.in, lo, hi, err)
		}
	}
}

func TestParseRangeEnv(t *testing.T) {
	t.Setenv("SLEEPY_TEST_RANGE", "400-550")
	if lo, hi := ParseRangeEnv("SLEEPY_TEST_RANGE", 1, 2); lo != 400 || hi != 550 {
		t.Errorf("unexpected range %d-%d", lo, hi)
	}
	t.Setenv("SLEEPY_TEST_RANGE", "nope")
	if lo, hi := ParseRangeEnv("SLEEPY_TEST_RANGE", 1, 2); lo != 1 || hi != 2 {
		t.Errorf("expected defaults, got %d-%d", lo, hi)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in, slog.LevelInfo); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
