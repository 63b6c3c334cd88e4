package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/config"
	"github.com/git-pkgs/catalog/install"
	"github.com/git-pkgs/catalog/update"
)

// printNotifier reports check results on the terminal.
type printNotifier struct {
	out io.Writer
}

func (n printNotifier) UpdatesAvailable(_ context.Context, r *update.Report) error {
	for _, f := range r.Updates {
		fmt.Fprintf(n.out, "update available: %s %s (%s)\n", f.Listing.Name(), f.Listing.Version(), f.State)
	}
	for _, f := range r.New {
		fmt.Fprintf(n.out, "new: %s %s\n", f.Listing.Name(), f.Listing.Version())
	}
	return nil
}

func (n printNotifier) OpenCatalog(ctx context.Context, url string, r *update.Report) error {
	fmt.Fprintf(n.out, "open %s to review %d update(s)\n", url, len(r.Updates)+len(r.New))
	return nil
}

// checker builds the check pipeline from the configuration.
func (a *app) checker(ctx context.Context, action update.Action, out io.Writer) (*update.Checker, *config.StateFile, error) {
	if len(a.cfg.Catalogs) == 0 {
		return nil, nil, update.ErrNoCatalogs
	}
	state, err := config.OpenState(a.cfg.StateFile)
	if err != nil {
		return nil, nil, err
	}
	dir, err := a.pluginDir(ctx)
	if err != nil {
		return nil, nil, err
	}
	orch := a.orchestrator(dir, out, install.WithNoWait())
	c := update.NewChecker(a.loader(nil),
		update.WithCatalogs(a.cfg.Catalogs, a.cfg.UpdateAll),
		update.WithAction(action),
		update.WithHost(a.host()),
		update.WithInstalledSource(dir),
		update.WithSeenStore(state),
		update.WithNotifier(printNotifier{out: out}),
		update.WithInstaller(orch),
		update.WithCheckerLogger(a.log.Component("update").Zerolog()),
	)
	return c, state, nil
}

func newCheckCmd(a *app) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configured catalogs for updates once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			act := a.cfg.UpdateAction()
			if action != "" {
				parsed, err := update.ParseAction(action)
				if err != nil {
					return err
				}
				act = parsed
			}
			checker, state, err := a.checker(cmd.Context(), act, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			sched := update.NewScheduler(checker, state, a.cfg.UpdateFrequency(),
				update.WithSchedulerLogger(a.log.Component("scheduler").Zerolog()),
				update.WithMetrics(a.metrics),
			)
			report, err := sched.CheckNow(cmd.Context())
			if err != nil {
				return err
			}
			return summarize(cmd.OutOrStdout(), cmd.ErrOrStderr(), report)
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "override the configured action: notify, open-browser, install")
	return cmd
}

func summarize(out, errOut io.Writer, r *update.Report) error {
	if r.Locked() {
		fmt.Fprintln(errOut, "a catalog is being updated on the server, try again shortly")
	}
	if !r.HasFindings() {
		fmt.Fprintln(out, "everything is up to date")
	}
	printWarnings(errOut, r.Warnings)
	for _, b := range r.Installs {
		if b.Restart {
			fmt.Fprintln(out, "restart the application to finish installing")
			break
		}
	}
	return errors.Join(r.Errors...)
}

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check for updates in the background at the configured frequency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			checker, state, err := a.checker(ctx, a.cfg.UpdateAction(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if a.cfg.UpdateFrequency() == update.Never {
				return fmt.Errorf("update checks are disabled (frequency: never)")
			}

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server stopped")
					}
				}()
				defer func() { _ = srv.Close() }()
			}

			sched := update.NewScheduler(checker, state, a.cfg.UpdateFrequency(),
				update.WithSchedulerLogger(a.log.Component("scheduler").Zerolog()),
				update.WithMetrics(a.metrics),
				update.OnCheck(func(r *update.Report, err error) {
					if err == nil {
						_ = summarize(cmd.OutOrStdout(), cmd.ErrOrStderr(), r)
					}
				}),
			)
			sched.Start(ctx)
			defer sched.Stop()

			a.log.Info().
				Str("frequency", a.cfg.UpdateFrequency().String()).
				Dur("next_check", update.UntilNextCheck(a.cfg.UpdateFrequency(), state.LastCheck(), time.Now())).
				Msg("watching catalogs")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
