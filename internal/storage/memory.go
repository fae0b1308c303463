package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage used for development and tests.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	failSets bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSets {
		return ErrUnavailable
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSets {
		return ErrUnavailable
	}
	delete(m.data, key)
	return nil
}

// FailWrites makes every subsequent Set and Delete return ErrUnavailable
// until called again with false.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	m.failSets = fail
	m.mu.Unlock()
}

// Keys lists the keys currently held.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
