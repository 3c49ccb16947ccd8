package kvstore

import (
	"context"
	"strings"

	cache "github.com/patrickmn/go-cache"
)

// Memory is a process-local Store. Entries never expire on their own; TTLs
// are enforced by the caches layered on top.
type Memory struct {
	cache *cache.Cache
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	obj, found := m.cache.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	value := obj.([]byte)
	return append([]byte(nil), value...), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, append([]byte(nil), value...), cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}

var _ Store = (*Memory)(nil)
