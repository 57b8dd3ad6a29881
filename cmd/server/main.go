package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/todosync/api/handler"
	"github.com/fastygo/todosync/assets"
	"github.com/fastygo/todosync/internal/config"
	"github.com/fastygo/todosync/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/todosync/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/todosync/internal/infrastructure/redis"
	"github.com/fastygo/todosync/internal/middleware"
	"github.com/fastygo/todosync/internal/router"
	"github.com/fastygo/todosync/internal/services/lifecycle"
	"github.com/fastygo/todosync/pkg/httpcontext"
	"github.com/fastygo/todosync/pkg/logger"
	"github.com/fastygo/todosync/repository"
	"github.com/fastygo/todosync/repository/memory"
	"github.com/fastygo/todosync/repository/postgres"
	redisRepo "github.com/fastygo/todosync/repository/redis"
	authUC "github.com/fastygo/todosync/usecase/auth"
	listUC "github.com/fastygo/todosync/usecase/list"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Output:   cfg.Logger.Output,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.JWT.Secret == "" {
		zapLogger.Fatal("JWT_SECRET is required")
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(appCtx, cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var (
		lists    repository.ListRepository
		sessions repository.SessionRepository
		probes   []monitor.Probe
	)

	switch cfg.Database.Backend {
	case "memory":
		zapLogger.Warn("lists and sessions are kept in memory and lost on restart")
		lists = memory.NewLists()
		sessions = memory.NewSessions(cfg.JWT.SessionTTL)
		probes = append(probes, monitor.Probe{Name: "memory", Check: func(context.Context) error { return nil }})

	default:
		if err := pgInfra.RunMigrations(cfg, assets.Migrations, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}

		pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})

		redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})

		lists = postgres.NewListRepository(pool)
		sessions = redisRepo.NewSessionRepository(redisClient, cfg.JWT.SessionTTL)
		probes = append(probes, monitor.PostgresProbe(pool), monitor.RedisProbe(redisClient))
	}

	mon := monitor.New(cfg.Sync.ProbeInterval, zapLogger, probes...)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	authUseCase := authUC.New(sessions, cfg.JWT.Secret, zapLogger)
	listUseCase := listUC.New(lists, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:   apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger, cfg.JWT.SessionTTL),
		List:   apiHandler.NewListHandler(listUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(authUseCase, cfg.Context.RequestTimeout, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func(ctx context.Context) error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Go("http_shutdown", func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Context.ShutdownTimeout)
		defer cancel()
		return server.ShutdownWithContext(shutdownCtx)
	})

	if err := manager.Wait(); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
	}

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
