package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory behind one mutex. Every
// operation holds the lock for its whole duration, which makes Rotate and
// RevokeAllForUser trivially linearizable.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[string]*Record
	byHash      map[Hash]string
	byUser      map[string]map[string]struct{}
	generations map[string]uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*Record),
		byHash:      make(map[Hash]string),
		byUser:      make(map[string]map[string]struct{}),
		generations: make(map[string]uint64),
	}
}

func (m *MemoryStore) Create(_ context.Context, userID string, tokenHash Hash, issuedAt, expiresAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	if err := m.insertLocked(id, userID, tokenHash, issuedAt, expiresAt); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) insertLocked(id, userID string, tokenHash Hash, issuedAt, expiresAt time.Time) error {
	if _, exists := m.byHash[tokenHash]; exists {
		return ErrDuplicate
	}
	rec := &Record{
		ID:         id,
		UserID:     userID,
		TokenHash:  tokenHash,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
		Generation: m.generations[userID],
	}
	m.byID[id] = rec
	m.byHash[tokenHash] = id
	ids, ok := m.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		m.byUser[userID] = ids
	}
	ids[id] = struct{}{}
	return nil
}

func (m *MemoryStore) FindActive(_ context.Context, tokenHash Hash, now time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookupLocked(tokenHash)
	if !ok || !rec.ActiveAt(now, m.generations[rec.UserID]) {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) FindByHash(_ context.Context, tokenHash Hash) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookupLocked(tokenHash)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Revoke(_ context.Context, recordID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[recordID]
	if !ok {
		return ErrNotFound
	}
	if rec.RevokedAt == nil {
		at := now
		rec.RevokedAt = &at
	}
	return nil
}

func (m *MemoryStore) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.generations[userID]
	m.generations[userID] = current + 1

	revoked := 0
	for id := range m.byUser[userID] {
		rec := m.byID[id]
		if rec.RevokedAt != nil {
			continue
		}
		at := now
		rec.RevokedAt = &at
		revoked++
	}
	return revoked, nil
}

func (m *MemoryStore) LinkReplacement(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[oldID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.byID[newID]; !ok {
		return ErrNotFound
	}
	rec.ReplacedBy = newID
	return nil
}

func (m *MemoryStore) Rotate(_ context.Context, req RotateRequest) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookupLocked(req.OldHash)
	if !ok || (req.UserID != "" && rec.UserID != req.UserID) {
		return nil, ErrNotFound
	}
	if err := rec.Status(req.Now, m.generations[rec.UserID]); err != nil {
		return cloneRecord(rec), err
	}

	if err := m.insertLocked(req.NewID, rec.UserID, req.NewHash, req.IssuedAt, req.ExpiresAt); err != nil {
		return nil, err
	}
	at := req.Now
	rec.RevokedAt = &at
	rec.ReplacedBy = req.NewID

	return cloneRecord(rec), nil
}

func (m *MemoryStore) ListActive(_ context.Context, userID string, now time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	generation := m.generations[userID]
	out := make([]Record, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		rec := m.byID[id]
		if rec.ActiveAt(now, generation) {
			out = append(out, *cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) lookupLocked(tokenHash Hash) (*Record, bool) {
	id, ok := m.byHash[tokenHash]
	if !ok {
		return nil, false
	}
	rec, ok := m.byID[id]
	return rec, ok
}

func cloneRecord(r *Record) *Record {
	out := *r
	if r.RevokedAt != nil {
		at := *r.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}
