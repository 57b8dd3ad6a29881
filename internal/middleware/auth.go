package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/pkg/httpcontext"
)

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// JWTAuth rejects requests without a valid token and exposes the caller's
// owner and device to the handlers as request headers.
func JWTAuth(auth Authenticator, timeout time.Duration, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			// Identity headers only ever come from a verified token.
			ctx.Request.Header.Del(httpcontext.HeaderOwnerID)
			ctx.Request.Header.Del(httpcontext.HeaderDeviceID)

			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			stdCtx, cancel := context.WithTimeout(context.Background(), timeout)
			session, err := auth.Authenticate(stdCtx, tokenString)
			cancel()
			if err != nil {
				if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
					logger.Warn("invalid jwt token", zap.Error(err))
					ctx.SetStatusCode(fasthttp.StatusUnauthorized)
					return
				}
				logger.Error("session lookup failed", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				return
			}

			ctx.Request.Header.Set(httpcontext.HeaderOwnerID, session.OwnerID)
			ctx.Request.Header.Set(httpcontext.HeaderDeviceID, session.DeviceID)

			next(ctx)
		}
	}
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
