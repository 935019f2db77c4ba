// Package doctor probes the installed melt binary and caches what it can do.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-render/internal/process"
)

const (
	defaultCacheTTL = 5 * time.Minute
	defaultTimeout  = 10 * time.Second
)

// Capabilities is what a probe learned about melt.
type Capabilities struct {
	MeltPath    string    `json:"melt_path"`
	Version     string    `json:"version"`
	Consumers   []string  `json:"consumers"`
	HasAvformat bool      `json:"has_avformat"`
	ProbedAt    time.Time `json:"probed_at"`
}

// Prober inspects the melt installation.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// MeltProber runs `melt -version` and `melt -query consumers`.
type MeltProber struct {
	meltPath string
	timeout  time.Duration
	shell    func(ctx context.Context, cmdline string) ([]byte, error)
}

func NewMeltProber(meltPath string) *MeltProber {
	return &MeltProber{meltPath: meltPath, timeout: defaultTimeout, shell: process.Shell}
}

// SetShell replaces how melt is invoked.
func (p *MeltProber) SetShell(fn func(ctx context.Context, cmdline string) ([]byte, error)) {
	p.shell = fn
}

var versionPattern = regexp.MustCompile(`(?m)^melt\s+v?(\S+)`)

func (p *MeltProber) Probe(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.shell(ctx, p.meltPath+" -version")
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("melt -version: %w", err)
	}
	caps := &Capabilities{MeltPath: p.meltPath, ProbedAt: time.Now()}
	if m := versionPattern.FindSubmatch(out); m != nil {
		caps.Version = string(m[1])
	}

	out, err = p.shell(ctx, p.meltPath+" -query consumers")
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("melt -query consumers: %w", err)
	}
	caps.Consumers = parseQueryList(out)
	for _, c := range caps.Consumers {
		if c == "avformat" {
			caps.HasAvformat = true
		}
	}
	return caps, nil
}

// parseQueryList reads the YAML-ish "  - name" list melt prints for -query.
func parseQueryList(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := strings.CutPrefix(line, "- "); ok {
			out = append(out, strings.TrimSpace(name))
		}
	}
	return out
}

// CachedDoctor wraps a Prober and caches its result for a TTL.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes regardless of cache age. A failed probe falls back to the
// stale result when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("melt probe failed", "error", err)
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
