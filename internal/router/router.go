package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/todosync/api/handler"
)

type Handlers struct {
	Auth   *apiHandler.AuthHandler
	List   *apiHandler.ListHandler
	Health *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Auth routes
	r.POST("/api/v1/auth/login", handlers.Auth.Login)
	r.POST("/api/v1/auth/refresh", handlers.Auth.Refresh)
	r.GET("/api/v1/auth/devices", authMiddleware(handlers.Auth.Devices))

	// Protected routes
	r.GET("/api/v1/list", authMiddleware(handlers.List.GetList))
	r.PATCH("/api/v1/list", authMiddleware(handlers.List.SyncList))
	r.POST("/api/v1/list", authMiddleware(handlers.List.Create))
	r.PUT("/api/v1/list/{id}", authMiddleware(handlers.List.Update))
	r.DELETE("/api/v1/list/{id}", authMiddleware(handlers.List.Delete))

	return r
}
