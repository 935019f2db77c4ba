// Package session provides render.SessionStore adapters. Every store keeps
// one slot per session id; the id travels in the request context.
package session

import (
	"context"
	"sync"

	"github.com/heimdex/heimdex-render/internal/render"
)

// DefaultID is the session used when the context carries none, as in the
// CLI.
const DefaultID = "local"

type ctxKey struct{}

// WithID returns a context bound to session id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the session id of ctx, or DefaultID.
func IDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultID
}

// Memory keeps slots in process memory.
type Memory struct {
	mu    sync.Mutex
	slots map[string]render.Slot
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]render.Slot)}
}

func (m *Memory) Load(ctx context.Context) (render.Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[IDFromContext(ctx)]
	return s, ok, nil
}

func (m *Memory) Save(ctx context.Context, slot render.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[IDFromContext(ctx)] = slot
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, IDFromContext(ctx))
	return nil
}
