package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownFunc describes a graceful shutdown callback.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager runs long-lived components and coordinates their shutdown.
// Components started with Go share one context; the first one to fail
// cancels it. Shutdown hooks run in reverse registration order.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	group *errgroup.Group
	ctx   context.Context

	mu    sync.Mutex
	hooks []hook
}

// New creates a lifecycle manager bound to parent with the desired shutdown timeout.
func New(parent context.Context, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	group, ctx := errgroup.WithContext(parent)
	return &Manager{
		timeout: timeout,
		logger:  logger,
		group:   group,
		ctx:     ctx,
	}
}

// Context is cancelled when the parent is, or when a component fails.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Go runs a component until it returns. A nil return is a clean stop.
func (m *Manager) Go(name string, fn func(ctx context.Context) error) {
	m.group.Go(func() error {
		err := fn(m.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("component failed", zap.String("component", name), zap.Error(err))
			return err
		}
		return nil
	})
}

// Wait blocks until every component started with Go has returned.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Register adds a shutdown hook. Hooks are executed in reverse order.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Shutdown executes all registered hooks, respecting the configured timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Debug("component stopped", zap.String("component", h.name))
	}
	return result
}

// Listen invokes cancel once an OS termination signal is received.
func (m *Manager) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-m.ctx.Done():
		}
	}()
}
