package store

import (
	"bytes"
	"context"
	"sync"
)

// Memory is a process-local Store used by tests and single-node development.
type Memory struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]Record)}
}

func (m *Memory) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[key]
	if !ok {
		return Record{}, nil
	}
	return Record{Data: bytes.Clone(rec.Data), Version: rec.Version}, nil
}

func (m *Memory) Init(ctx context.Context, key string, def []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		m.data[key] = Record{Data: bytes.Clone(def), Version: 1}
	}
	return nil
}

func (m *Memory) Commit(ctx context.Context, writes ...Write) error {
	if err := validate(writes); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if m.data[w.Key].Version != w.Version {
			return ErrConflict
		}
	}
	for _, w := range writes {
		switch {
		case w.Check:
		case w.Delete:
			delete(m.data, w.Key)
		default:
			m.data[w.Key] = Record{Data: bytes.Clone(w.Data), Version: w.Version + 1}
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
