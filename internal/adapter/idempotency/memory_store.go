package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/hugohenrick/erp-veterinaria/pkg/clock"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryStore implementa Store em memória para uma única instância
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryStore cria o store em memória
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{clock: clk, entries: make(map[string]memoryEntry)}
}

// Reserve grava a chave como pendente se não existir ou tiver expirado
func (s *MemoryStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{rec: Record{Pending: true}, expiresAt: s.clock.Now().Add(ttl)}
	return true, nil
}

// Complete grava a resposta final
func (s *MemoryStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Pending = false
	rec.Body = append([]byte(nil), rec.Body...)
	s.entries[key] = memoryEntry{rec: rec, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Get lê o registro da chave
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	rec := entry.rec
	rec.Body = append([]byte(nil), entry.rec.Body...)
	return &rec, nil
}

// Release remove a chave
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// lookup deve ser chamado com s.mu travado
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
