package testutil

import (
	"fmt"
	"sync"

	"sag-go/internal/sag"
)

// MemorySettings is a map-backed sag.SettingsStore. Err, when set, fails
// every call.
type MemorySettings struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	Err     error
}

var _ sag.SettingsStore = (*MemorySettings)(nil)

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
	}
}

func (m *MemorySettings) GetString(key string, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", fmt.Errorf("get %s: %w", key, m.Err)
	}
	if v, ok := m.strings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemorySettings) SetString(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return fmt.Errorf("set %s: %w", key, m.Err)
	}
	m.strings[key] = value
	return nil
}

func (m *MemorySettings) GetList(key string, def []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, fmt.Errorf("get %s: %w", key, m.Err)
	}
	if v, ok := m.lists[key]; ok {
		return append([]string(nil), v...), nil
	}
	return def, nil
}

func (m *MemorySettings) SetList(key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return fmt.Errorf("set %s: %w", key, m.Err)
	}
	m.lists[key] = append([]string(nil), values...)
	return nil
}

func (m *MemorySettings) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return fmt.Errorf("delete %s: %w", key, m.Err)
	}
	delete(m.strings, key)
	delete(m.lists, key)
	return nil
}
