// Package memory keeps server state in process memory. It backs the server
// when no database is configured and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

type ownerList struct {
	records  map[uuid.UUID]repository.StoredRecord
	revision int64
}

// Lists is an in-memory repository.ListRepository.
type Lists struct {
	mu     sync.Mutex
	owners map[string]*ownerList
}

var _ repository.ListRepository = (*Lists)(nil)

func NewLists() *Lists {
	return &Lists{owners: make(map[string]*ownerList)}
}

func (l *Lists) owner(id string) *ownerList {
	list, ok := l.owners[id]
	if !ok {
		list = &ownerList{records: make(map[uuid.UUID]repository.StoredRecord)}
		l.owners[id] = list
	}
	return list
}

func (l *Lists) List(_ context.Context, ownerID string) ([]repository.StoredRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owner(ownerID)
	out := make([]repository.StoredRecord, 0, len(list.records))
	for _, rec := range list.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, list.revision, nil
}

func (l *Lists) Get(_ context.Context, ownerID string, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owner(ownerID)
	rec, ok := list.records[id]
	if !ok {
		return nil, list.revision, domain.ErrRecordNotFound
	}
	return &rec, list.revision, nil
}

func (l *Lists) Replace(_ context.Context, ownerID string, knownRevision int64, records []repository.StoredRecord) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owner(ownerID)
	if list.revision != knownRevision {
		return list.revision, domain.ErrRevisionMismatch
	}
	list.records = make(map[uuid.UUID]repository.StoredRecord, len(records))
	for _, rec := range records {
		list.records[rec.ID] = rec
	}
	list.revision++
	return list.revision, nil
}

func (l *Lists) Upsert(_ context.Context, ownerID string, knownRevision int64, record repository.StoredRecord) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owner(ownerID)
	if list.revision != knownRevision {
		return list.revision, domain.ErrRevisionMismatch
	}
	list.records[record.ID] = record
	list.revision++
	return list.revision, nil
}

func (l *Lists) Delete(_ context.Context, ownerID string, knownRevision int64, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.owner(ownerID)
	if list.revision != knownRevision {
		return nil, list.revision, domain.ErrRevisionMismatch
	}
	rec, ok := list.records[id]
	if !ok {
		return nil, list.revision, domain.ErrRecordNotFound
	}
	delete(list.records, id)
	list.revision++
	return &rec, list.revision, nil
}

// Sessions is an in-memory repository.SessionRepository. Expired sessions
// are dropped on read.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	ttl      time.Duration
}

var _ repository.SessionRepository = (*Sessions)(nil)

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Sessions{sessions: make(map[string]domain.Session), ttl: ttl}
}

func (s *Sessions) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.IsExpired(time.Now()) {
		delete(s.sessions, id)
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (s *Sessions) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" || session.OwnerID == "" {
		return domain.ErrInvalidPayload
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *Sessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Sessions) Extend(_ context.Context, id string, ttlSeconds int) error {
	duration := time.Duration(ttlSeconds) * time.Second
	if duration <= 0 {
		duration = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.ExpiresAt = time.Now().Add(duration)
	s.sessions[id] = session
	return nil
}

func (s *Sessions) ListByOwner(_ context.Context, ownerID string) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*domain.Session
	for id, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, id)
			continue
		}
		if session.OwnerID == ownerID {
			session := session
			out = append(out, &session)
		}
	}
	return out, nil
}
