package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

type sessionRepository struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewSessionRepository creates a Redis-backed session repository. Each
// session lives under its own key with a TTL; a per-owner set indexes the
// devices so they can be listed.
func NewSessionRepository(client *redislib.Client, ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{
		client: client,
		prefix: "todosync:",
		ttl:    ttl,
	}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	result, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(result, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" || session.OwnerID == "" {
		return domain.ErrInvalidPayload
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		session.ExpiresAt = session.CreatedAt.Add(r.ttl)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = r.ttl
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.ID), payload, ttl)
		pipe.SAdd(ctx, r.ownerKey(session.OwnerID), session.ID)
		return nil
	})
	return err
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(id))
		pipe.SRem(ctx, r.ownerKey(session.OwnerID), id)
		return nil
	})
	return err
}

// Extend pushes both the key TTL and the stored expiry forward.
func (r *sessionRepository) Extend(ctx context.Context, id string, ttlSeconds int) error {
	duration := time.Duration(ttlSeconds) * time.Second
	if duration <= 0 {
		duration = r.ttl
	}
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	session.ExpiresAt = time.Now().Add(duration)
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.sessionKey(id), payload, duration).Err()
}

// ListByOwner drops index entries whose session key already expired.
func (r *sessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, r.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*domain.Session, 0, len(ids))
	var stale []any
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, r.ownerKey(ownerID), stale...).Err()
	}
	return sessions, nil
}

func (r *sessionRepository) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *sessionRepository) ownerKey(ownerID string) string {
	return r.prefix + "owner:" + ownerID + ":sessions"
}
