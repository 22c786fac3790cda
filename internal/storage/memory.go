package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps everything in a map. Used by tests and by the
// "memory" backend setting for throwaway repositories.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Init() error { return nil }

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte{}, v...), nil
}

func (m *MemoryBackend) Has(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.data[key]
	return ok, nil
}

func (m *MemoryBackend) Create(key string, value []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = append([]byte{}, value...)
	return true, nil
}

func (m *MemoryBackend) Apply(writes ...Write) error {
	for _, w := range writes {
		if err := validateKey(w.Key); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		m.data[w.Key] = append([]byte{}, w.Value...)
	}
	return nil
}

func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Close() error { return nil }

// Set overwrites a key without any write-once checks. Tests use it to
// simulate external tampering.
func (m *MemoryBackend) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte{}, value...)
}

// Delete removes a key. Tests use it to simulate a lost object.
func (m *MemoryBackend) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
