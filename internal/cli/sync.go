package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastygo/todosync/internal/infrastructure/monitor"
	"github.com/fastygo/todosync/internal/services"
	"github.com/fastygo/todosync/repository/httpremote"
	"github.com/fastygo/todosync/usecase/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload the whole list and take the server's merged result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			if err := a.sync.Resync(cmd.Context()); err != nil {
				return errors.Join(err, a.close())
			}
			closeErr := a.close()
			if a.sync.Dirty() {
				pending(a.out, "list is not in sync yet")
			} else {
				ok(a.out, fmt.Sprintf("in sync (%d records)", len(a.sync.Snapshot().Items)))
			}
			return closeErr
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server reachability and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			mon := monitor.New(time.Minute, a.logger, remoteProbe(a.remote))
			mon.Refresh()

			closeErr := a.close()
			snap := a.sync.Snapshot()
			fmt.Fprintln(a.out, renderStatus(len(snap.Items), snap.CompletedCount, a.sync.Dirty(), mon.IsOnline(), a.remote.Revision(), a.cfg.Remote.URL))
			return closeErr
		},
	}
}

// NewWatchCommand creates the watch command, which keeps the list
// converging until interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep running and upload unsynced changes whenever the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			h := hooks{
				onList: func(s syncer.Snapshot) {
					fmt.Fprintln(out, renderList(s, false, time.Now()))
				},
				onBusy: func(busy bool) {
					if busy {
						pending(out, "syncing")
					}
				},
			}
			a, err := openApp(ctx, rootOpts, out, cmd.ErrOrStderr(), h)
			if err != nil {
				return err
			}

			if interval <= 0 {
				interval = a.cfg.Sync.ReconcileInterval
			}
			if interval <= 0 {
				interval = 30 * time.Second
			}

			mon := monitor.New(a.cfg.Sync.ProbeInterval, a.logger, remoteProbe(a.remote))
			mon.Start()
			a.manager.Register("monitor", func(context.Context) error {
				mon.Stop()
				return nil
			})

			reconciler := services.NewReconciler(a.sync, mon, a.logger, services.ReconcilerConfig{
				Interval: interval,
				Timeout:  a.cfg.Remote.Timeout,
			})
			reconciler.Start()
			a.manager.Register("reconciler", func(ctx context.Context) error {
				reconciler.Stop(ctx)
				return nil
			})

			<-ctx.Done()
			return a.close()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "how often to retry unsynced changes (default RECONCILE_INTERVAL or 30s)")
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "login [owner]",
		Short: "Register this device with the server and store its token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			owner := cfg.Remote.OwnerID
			if len(args) == 1 {
				owner = args[0]
			}
			if owner == "" {
				return errors.New("owner is required: pass it as an argument or set OWNER_ID")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Remote.Timeout)
			defer cancel()
			res, err := newRemote(cfg, log).Login(ctx, owner, ttl)
			if err != nil {
				return err
			}
			if err := writeToken(cfg, res.Token); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), fmt.Sprintf("logged in as %s on %s, token valid until %s",
				owner, cfg.Remote.DeviceID, time.Unix(res.ExpiresAt, 0).Format(time.RFC1123)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (server default when zero)")
	return cmd
}

func remoteProbe(remote *httpremote.Client) monitor.Probe {
	return monitor.Probe{Name: "remote", Timeout: 3 * time.Second, Check: remote.Ping}
}
