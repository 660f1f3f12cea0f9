package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same version semantics as
// PostgresStore. Used in tests and local runs without a database.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Session
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, actorID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[actorID]
	if !ok {
		now := m.now()
		row = Session{ActorID: actorID, Step: StepIdle, LastActivity: now, CreatedAt: now, UpdatedAt: now}
		m.rows[actorID] = row
	}
	return cloneSession(row), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[s.ActorID]
	if !ok || row.Version != s.Version {
		return ErrVersionConflict
	}
	next := *cloneSession(*s)
	next.Version++
	next.UpdatedAt = m.now()
	next.CreatedAt = row.CreatedAt
	m.rows[s.ActorID] = next
	s.Version = next.Version
	return nil
}

func cloneSession(s Session) *Session {
	s.Draft.OfferedTimes = append([]string(nil), s.Draft.OfferedTimes...)
	return &s
}
