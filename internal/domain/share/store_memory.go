package share

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a TokenStore held in process memory. Every method takes the
// store lock, so single operations are atomic. WithTx only runs fn: there is
// no rollback, and a sequence that fails partway keeps the writes it made.
// Records are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu             sync.RWMutex
	tokens         map[string]*ShareToken // token hash -> record
	byID           map[uuid.UUID]string   // row id -> token hash
	byPrescription map[uuid.UUID][]string // prescription id -> token hashes
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:         make(map[string]*ShareToken),
		byID:           make(map[uuid.UUID]string),
		byPrescription: make(map[uuid.UUID][]string),
	}
}

func cloneToken(t *ShareToken) *ShareToken {
	c := *t
	c.Token = ""
	if t.ExpiresAt != nil {
		v := *t.ExpiresAt
		c.ExpiresAt = &v
	}
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		c.RevokedAt = &v
	}
	if t.LastAccessedAt != nil {
		v := *t.LastAccessedAt
		c.LastAccessedAt = &v
	}
	return &c
}

func (s *MemoryStore) Get(_ context.Context, tokenHash string) (*ShareToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*ShareToken, error) {
	s.mu.RLock()
	hash, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, hash)
}

func (s *MemoryStore) Put(_ context.Context, t *ShareToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.TokenHash]; exists {
		return ErrDuplicateToken
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	s.tokens[t.TokenHash] = cloneToken(t)
	s.byID[t.ID] = t.TokenHash
	s.byPrescription[t.PrescriptionID] = append(s.byPrescription[t.PrescriptionID], t.TokenHash)
	return nil
}

func (s *MemoryStore) ListByPrescription(_ context.Context, prescriptionID uuid.UUID) ([]*ShareToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.byPrescription[prescriptionID]
	items := make([]*ShareToken, 0, len(hashes))
	for _, h := range hashes {
		items = append(items, cloneToken(s.tokens[h]))
	}
	return items, nil
}

func (s *MemoryStore) RecordAccess(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return ErrNotFound
	}
	t.AccessCount++
	if t.LastAccessedAt == nil || at.After(*t.LastAccessedAt) {
		t.LastAccessedAt = &at
	}
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok || !t.IsActive {
		return false, nil
	}
	t.IsActive = false
	t.RevokedAt = &at
	return true, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Count returns the number of stored tokens, revoked ones included.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
