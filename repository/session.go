package repository

import (
	"context"

	"github.com/fastygo/todosync/domain"
)

type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	Extend(ctx context.Context, id string, ttlSeconds int) error
	// ListByOwner returns the live sessions of every device of an owner.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error)
}
