package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/internal/config"
	"github.com/fastygo/todosync/internal/services/lifecycle"
	"github.com/fastygo/todosync/pkg/backoff"
	"github.com/fastygo/todosync/pkg/logger"
	"github.com/fastygo/todosync/repository"
	"github.com/fastygo/todosync/repository/bolt"
	"github.com/fastygo/todosync/repository/httpremote"
	"github.com/fastygo/todosync/repository/sqlite"
	"github.com/fastygo/todosync/usecase/syncer"
)

// app is one CLI invocation: the local store, the remote client and the
// orchestrator between them.
type app struct {
	cfg     *config.Config
	opts    *RootOptions
	logger  *zap.Logger
	store   repository.RecordStore
	remote  *httpremote.Client
	sync    *syncer.Orchestrator
	manager *lifecycle.Manager
	out     io.Writer
	errOut  io.Writer
}

// hooks lets long-running commands follow the orchestrator's notifications.
type hooks struct {
	onList func(syncer.Snapshot)
	onBusy func(bool)
}

func loadConfig(opts *RootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := "error"
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openApp(ctx context.Context, opts *RootOptions, out, errOut io.Writer, h hooks) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Local)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		opts:    opts,
		logger:  log,
		store:   store,
		remote:  newRemote(cfg, log),
		manager: lifecycle.New(context.Background(), opts.Wait, log),
		out:     out,
		errOut:  errOut,
	}
	a.manager.Register("store", func(context.Context) error { return store.Close() })

	observer := syncer.ObserverFuncs{
		OnList:  h.onList,
		OnBusy:  h.onBusy,
		OnError: func(msg string) { fail(a.errOut, msg) },
	}
	a.sync = syncer.New(store, a.remote, observer, log, syncer.Config{
		Backoff: backoff.Policy{
			Min:    cfg.Sync.BackoffMin,
			Max:    cfg.Sync.BackoffMax,
			Factor: cfg.Sync.BackoffFactor,
			Jitter: cfg.Sync.BackoffJitter,
			Unit:   time.Second,
		},
		RequestTimeout: cfg.Remote.Timeout,
		ShowCompleted:  true,
	})
	a.manager.Register("sync", a.sync.Close)

	if err := a.sync.Load(ctx); err != nil {
		_ = a.manager.Shutdown(context.Background())
		return nil, err
	}

	// A change made while the initial refresh is in flight would make its
	// result stale and force a whole-list upload, so let it land first.
	settleCtx, cancel := context.WithTimeout(ctx, opts.Wait)
	_ = a.sync.WaitIdle(settleCtx)
	cancel()
	return a, nil
}

// close waits up to --wait for outstanding remote work, then tears down.
// Writes still pending at that point leave the list dirty.
func (a *app) close() error {
	waitCtx, cancel := context.WithTimeout(context.Background(), a.opts.Wait)
	err := a.sync.WaitIdle(waitCtx)
	cancel()
	if errors.Is(err, context.DeadlineExceeded) {
		pending(a.errOut, "server did not answer in time; changes will be uploaded on the next run")
	}
	return a.manager.Shutdown(context.Background())
}

func openStore(ctx context.Context, cfg config.LocalConfig) (repository.RecordStore, error) {
	switch cfg.Store {
	case "sqlite":
		return sqlite.Open(ctx, cfg.Path)
	default:
		return bolt.Open(cfg.Path)
	}
}

func newRemote(cfg *config.Config, log *zap.Logger) *httpremote.Client {
	token := cfg.Remote.Token
	if token == "" {
		token = readToken(cfg)
	}
	return httpremote.New(httpremote.Config{
		BaseURL:  cfg.Remote.URL,
		Token:    token,
		DeviceID: cfg.Remote.DeviceID,
		Timeout:  cfg.Remote.Timeout,
	}, log)
}

func tokenPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Local.Path), "token")
}

func readToken(cfg *config.Config) string {
	raw, err := os.ReadFile(tokenPath(cfg))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func writeToken(cfg *config.Config, token string) error {
	path := tokenPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

// resolve finds a record by full id or unique id prefix.
func (a *app) resolve(ref string) (domain.Record, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if id, err := uuid.Parse(ref); err == nil {
		if rec, ok := a.sync.Get(id); ok {
			return rec, nil
		}
		return domain.Record{}, domain.ErrRecordNotFound
	}
	if ref == "" {
		return domain.Record{}, domain.NewError(domain.ErrCodeInvalid, "record id is required")
	}

	var matches []domain.Record
	for _, rec := range a.sync.Snapshot().Items {
		if strings.HasPrefix(rec.ID.String(), ref) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Record{}, domain.ErrRecordNotFound
	case 1:
		return matches[0], nil
	default:
		return domain.Record{}, domain.NewError(domain.ErrCodeInvalid,
			fmt.Sprintf("id prefix %q matches %d records", ref, len(matches)))
	}
}
