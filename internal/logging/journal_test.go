package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedSink(t *testing.T, maxSize int64) *FileSink {
	t.Helper()
	s := NewFileSink(t.TempDir(), maxSize, "")
	s.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return s
}

func TestFileSinkRecordFormat(t *testing.T) {
	s := fixedSink(t, 0)

	if err := s.Record(0, "Start PID: 42"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	data, err := os.ReadFile(s.Path(0))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	want := "\n\n09/03/2024 14:05:07\nStart PID: 42"
	if string(data) != want {
		t.Errorf("journal = %q, want %q", data, want)
	}
}

func TestFileSinkPerUserDirectory(t *testing.T) {
	s := fixedSink(t, 0)

	if err := s.Record(7, "hello"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if filepath.Base(filepath.Dir(s.Path(7))) != "7" {
		t.Errorf("Path(7) = %s, want it under a 7/ directory", s.Path(7))
	}
	if _, err := os.Stat(s.Path(7)); err != nil {
		t.Errorf("user journal missing: %v", err)
	}
}

func TestFileSinkRotatesAtMaxSize(t *testing.T) {
	s := fixedSink(t, 64)

	big := strings.Repeat("x", 100)
	if err := s.Record(0, big); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := s.Record(0, "after"); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	data, err := os.ReadFile(s.Path(0))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if strings.Contains(string(data), big) {
		t.Error("journal over max size should have been discarded")
	}
	if !strings.HasSuffix(string(data), "after") {
		t.Errorf("journal = %q, want it to end with the latest entry", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("SanitizeToken = %q", got)
	}
}
