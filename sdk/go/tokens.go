package adminsdk

import (
	"context"
	"sync"
)

// TokenStore is the ETag cache, keyed by family and entity id. Writes are last
// write wins.
type TokenStore interface {
	Get(ctx context.Context, family, id string) (etag string, ok bool, err error)
	Put(ctx context.Context, family, id, etag string) error
	Delete(ctx context.Context, family, id string) error
}

// MemoryTokens is the default in-process TokenStore.
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]string)}
}

func tokenKey(family, id string) string { return family + "/" + id }

func (m *MemoryTokens) Get(_ context.Context, family, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	etag, ok := m.tokens[tokenKey(family, id)]
	return etag, ok, nil
}

func (m *MemoryTokens) Put(_ context.Context, family, id, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[tokenKey(family, id)] = etag
	return nil
}

func (m *MemoryTokens) Delete(_ context.Context, family, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenKey(family, id))
	return nil
}
