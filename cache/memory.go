package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/ardnew/talc/lang"
)

// Memory is a process-local [TemplateCache].
type Memory struct {
	flight

	cfg     config
	mu      sync.RWMutex
	entries map[lang.Key]*lang.CompiledTemplate
}

// NewMemory returns an empty Memory cache.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		cfg:     makeConfig(opts...),
		entries: make(map[lang.Key]*lang.CompiledTemplate),
	}
}

// Get returns the template stored under key.
func (m *Memory) Get(ctx context.Context, key lang.Key) (*lang.CompiledTemplate, bool, error) {
	m.mu.RLock()
	t, ok := m.entries[key]
	m.mu.RUnlock()

	m.cfg.logger.TraceContext(ctx, "memory cache lookup",
		slog.String("key", key.String()),
		slog.Bool("hit", ok))

	return t, ok, nil
}

// Put stores t under key. Storing a template whose artifact is identical
// to the one already stored leaves the entry untouched.
func (m *Memory) Put(ctx context.Context, key lang.Key, t *lang.CompiledTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok && bytes.Equal(old.Artifact(), t.Artifact()) {
		return nil
	}

	m.entries[key] = t

	m.cfg.logger.TraceContext(ctx, "memory cache store",
		slog.String("key", key.String()))

	return nil
}

// Len returns the number of stored templates.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
