package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

// Claims is the token payload. A token stays valid only while the session
// it names exists.
type Claims struct {
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`
	DeviceID  string `json:"device_id"`
	jwt.RegisteredClaims
}

type UseCase struct {
	sessions repository.SessionRepository
	secret   []byte
	logger   *zap.Logger
	now      func() time.Time
}

func New(sessions repository.SessionRepository, secret string, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		sessions: sessions,
		secret:   []byte(secret),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateSession registers a device of an owner.
func (uc *UseCase) CreateSession(ctx context.Context, ownerID, deviceID string, ttl time.Duration) (*domain.Session, error) {
	ownerID = strings.TrimSpace(ownerID)
	deviceID = strings.TrimSpace(deviceID)
	if ownerID == "" || deviceID == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "owner and device are required")
	}

	now := uc.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		DeviceID:  deviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	uc.logger.Info("session created",
		zap.String("owner_id", ownerID),
		zap.String("device_id", deviceID),
		zap.String("session_id", session.ID))
	return session, nil
}

func (uc *UseCase) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(uc.now()) {
		_ = uc.sessions.Delete(ctx, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (uc *UseCase) RefreshSession(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error) {
	session, err := uc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Extend(ctx, sessionID, int(ttl.Seconds())); err != nil {
		return nil, err
	}
	session.ExpiresAt = uc.now().Add(ttl)
	return session, nil
}

func (uc *UseCase) RevokeSession(ctx context.Context, sessionID string) error {
	return uc.sessions.Delete(ctx, sessionID)
}

// Devices lists the live sessions of an owner.
func (uc *UseCase) Devices(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	return uc.sessions.ListByOwner(ctx, ownerID)
}

// IssueToken signs an HS256 token for the session.
func (uc *UseCase) IssueToken(session *domain.Session) (string, error) {
	claims := Claims{
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		DeviceID:  session.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.secret)
}

// Authenticate verifies a token and the session behind it.
func (uc *UseCase) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthorized
		}
		return uc.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.WrapError(domain.ErrCodeUnauthorized, "invalid token", err)
	}

	session, err := uc.GetSession(ctx, claims.SessionID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.WrapError(domain.ErrCodeUnauthorized, "session expired", err)
		}
		return nil, err
	}
	if session.OwnerID != claims.OwnerID || session.DeviceID != claims.DeviceID {
		return nil, domain.ErrUnauthorized
	}
	return session, nil
}
