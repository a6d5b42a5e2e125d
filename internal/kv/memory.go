package kv

import (
	"bytes"
	"context"
	"sync"
)

// Memory is an in-process Backend. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	down bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bytes.Clone(m.data[key]), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *Memory) CompareAndSet(_ context.Context, key string, old, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !bytes.Equal(m.data[key], old) {
		return false, nil
	}
	m.data[key] = bytes.Clone(value)
	return true, nil
}

func (m *Memory) Available(context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.down
}

// SetAvailable toggles the liveness probe result.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	m.down = !ok
	m.mu.Unlock()
}

var (
	_ Backend = (*Memory)(nil)
	_ Swapper = (*Memory)(nil)
)
