package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// PostgresProbe pings the pool.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return Probe{Name: "postgresql", Timeout: 3 * time.Second, Check: pool.Ping}
}

// RedisProbe pings the client.
func RedisProbe(client *redislib.Client) Probe {
	return Probe{Name: "redis", Timeout: 2 * time.Second, Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

type Monitor struct {
	probes []Probe

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(interval time.Duration, logger *zap.Logger, probes ...Probe) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probes:   probes,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	services := make(map[string]bool, len(m.status.Services))
	for name, ok := range m.status.Services {
		services[name] = ok
	}
	return Status{Services: services, LastCheck: m.status.LastCheck}
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe once.
func (m *Monitor) Refresh() {
	status := Status{
		Services:  make(map[string]bool, len(m.probes)),
		LastCheck: time.Now(),
	}
	for _, p := range m.probes {
		status.Services[p.Name] = m.check(p)
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous.Healthy() != status.Healthy() && !previous.LastCheck.IsZero() {
		m.logger.Info("connectivity changed", zap.Bool("online", status.Healthy()), zap.Any("services", status.Services))
	}
}

func (m *Monitor) check(p Probe) bool {
	if p.Check == nil {
		return false
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Check(ctx); err != nil {
		m.logger.Debug("probe failed", zap.String("probe", p.Name), zap.Error(err))
		return false
	}
	return true
}
