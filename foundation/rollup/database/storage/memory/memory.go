// Package memory implements the database.Storage interface with an
// in-process map. Used by tests and ephemeral runs where nothing needs to
// survive a restart.
package memory

import (
	"sync"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// Memory represents the in-process storage implementation. This implements
// the database.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	tables map[database.Table]map[string][]byte
}

// New constructs an empty in-process store.
func New() *Memory {
	return &Memory{
		tables: make(map[database.Table]map[string][]byte),
	}
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Get returns the raw entity data for the specified table and key.
func (m *Memory) Get(table database.Table, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tables[table][key]
	if !exists {
		return nil, database.ErrNotFound
	}

	return append([]byte{}, data...), nil
}

// ForEach walks every entity in the specified table. The walk runs over a
// snapshot so the callback is free to read from the store.
func (m *Memory) ForEach(table database.Table, fn func(key string, data []byte) error) error {
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.tables[table]))
	for key, data := range m.tables[table] {
		snapshot[key] = data
	}
	m.mu.RUnlock()

	for key, data := range snapshot {
		if err := fn(key, append([]byte{}, data...)); err != nil {
			return err
		}
	}

	return nil
}

// Apply commits the writes as a single atomic unit.
func (m *Memory) Apply(writes []database.Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, write := range writes {
		if write.Delete {
			delete(m.tables[write.Table], write.Key)
			continue
		}

		if m.tables[write.Table] == nil {
			m.tables[write.Table] = make(map[string][]byte)
		}
		m.tables[write.Table][write.Key] = append([]byte{}, write.Data...)
	}

	return nil
}
