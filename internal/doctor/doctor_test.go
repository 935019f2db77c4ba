package doctor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func fakeShell(outputs map[string]string, err error) func(context.Context, string) ([]byte, error) {
	return func(_ context.Context, cmdline string) ([]byte, error) {
		for suffix, out := range outputs {
			if strings.HasSuffix(cmdline, suffix) {
				return []byte(out), nil
			}
		}
		return nil, err
	}
}

func TestMeltProber(t *testing.T) {
	p := NewMeltProber("/usr/bin/melt")
	p.shell = fakeShell(map[string]string{
		"-version":         "melt 7.22.0\nCopyright (C) 2002-2023 Meltytech, LLC\n",
		"-query consumers": "---\nconsumers:\n  - avformat\n  - xml\n  - sdl2\n...\n",
	}, errors.New("unexpected"))

	caps, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if caps.Version != "7.22.0" {
		t.Errorf("Version = %q", caps.Version)
	}
	if !caps.HasAvformat || len(caps.Consumers) != 3 {
		t.Errorf("consumers = %v, avformat = %v", caps.Consumers, caps.HasAvformat)
	}
}

func TestMeltProber_Missing(t *testing.T) {
	p := NewMeltProber("/nope/melt")
	p.shell = fakeShell(nil, errors.New("exit status 127"))
	if _, err := p.Probe(context.Background()); err == nil {
		t.Error("Probe() error = nil for missing binary")
	}
}

type countingProber struct {
	calls int
	err   error
}

func (c *countingProber) Probe(ctx context.Context) (*Capabilities, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &Capabilities{Version: "7", ProbedAt: time.Now()}, nil
}

func TestCachedDoctor(t *testing.T) {
	prober := &countingProber{}
	d := NewCachedDoctor(prober, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if d.Peek() != nil {
		t.Fatal("Peek() before probe should be nil")
	}
	for i := 0; i < 3; i++ {
		if _, err := d.Get(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1", prober.calls)
	}

	prober.err = errors.New("gone")
	caps, err := d.Refresh(context.Background())
	if err != nil || caps == nil {
		t.Errorf("Refresh() with stale cache = %v, %v", caps, err)
	}

	d.Invalidate()
	if _, err := d.Get(context.Background()); err == nil {
		t.Error("Get() after Invalidate with failing prober should fail")
	}
}
