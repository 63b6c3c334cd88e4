package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/checksum"
	"github.com/git-pkgs/catalog/install"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/internal/plugindir"
)

// lineProgress writes download progress to a terminal.
type lineProgress struct {
	out io.Writer
}

func (p lineProgress) Status(s string) {
	fmt.Fprintln(p.out, s)
}

func (p lineProgress) Bytes(done, total int64) {
	if total > 0 {
		fmt.Fprintf(p.out, "\r  %s / %s", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
		if done >= total {
			fmt.Fprintln(p.out)
		}
	}
}

// fixedDecision answers every checksum mismatch the same way.
func fixedDecision(d install.Decision, out io.Writer) install.Prompt {
	return install.PromptFunc(func(_ context.Context, l *core.Listing, expected string, actual checksum.Digest) install.Decision {
		fmt.Fprintf(out, "checksum mismatch for %s: expected %s, got %s (%s)\n", l.Name(), expected, actual, d)
		return d
	})
}

func parseDecision(s string) (install.Decision, error) {
	switch s {
	case "skip", "":
		return install.Skip, nil
	case "retry":
		return install.Retry, nil
	case "force":
		return install.Force, nil
	}
	return install.Skip, fmt.Errorf("invalid mismatch decision %q (want skip, retry or force)", s)
}

func (a *app) orchestrator(dir *plugindir.Dir, out io.Writer, opts ...install.Option) *install.Orchestrator {
	base := []install.Option{
		install.WithFetcher(a.fetcher),
		install.WithProgress(lineProgress{out: out}),
		install.WithStageObserver(func(l *core.Listing, s install.Stage) {
			a.log.LogInstall(l.Name(), s.String(), nil)
		}),
		install.WithLogger(a.log.Component("install").Zerolog()),
		install.WithMetrics(a.metrics),
	}
	return install.New(dir, append(base, opts...)...)
}

func newInstallCmd(a *app) *cobra.Command {
	var (
		catalogURL string
		onMismatch string
		noCache    bool
	)
	cmd := &cobra.Command{
		Use:   "install <name|uuid|id|purl>...",
		Short: "Install listings and everything they require",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, err := parseDecision(onMismatch)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dir, err := a.pluginDir(ctx)
			if err != nil {
				return err
			}
			if err := dir.ApplyPendingDeletes(); err != nil {
				a.log.Warn().Err(err).Msg("applying pending deletes")
			}
			snap, err := dir.Snapshot(ctx)
			if err != nil {
				return err
			}
			res, err := a.load(ctx, catalogURL, snap, noCache)
			if err != nil {
				return err
			}
			c := res.Catalog

			for _, ref := range args {
				l, err := findListing(c, ref)
				if err != nil {
					return err
				}
				c.SetFlag(c.IndexOf(l.ID().UUID), true)
			}
			printWarnings(cmd.ErrOrStderr(), core.ResolveClosure(c, snap))

			// Cancel the batch between chunks when the user interrupts.
			go func() {
				<-ctx.Done()
				c.Cancel()
			}()

			out := cmd.OutOrStdout()
			batch, err := a.orchestrator(dir, out, install.WithPrompt(fixedDecision(decision, cmd.ErrOrStderr()))).Install(ctx, c)
			if batch != nil {
				for _, r := range batch.Results {
					line := fmt.Sprintf("%-10s %s", r.Stage, r.Listing.Name())
					if r.Err != nil {
						line += ": " + r.Err.Error()
					}
					fmt.Fprintln(out, line)
				}
				printWarnings(cmd.ErrOrStderr(), batch.Warnings)
				if batch.Restart {
					fmt.Fprintln(out, "restart the application to finish installing")
				}
			}
			if err != nil {
				return err
			}
			if n := len(batch.Failed()); n > 0 {
				return fmt.Errorf("%d listing(s) failed to install", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogURL, "catalog", "", "catalog URL (defaults to the primary catalog)")
	cmd.Flags().StringVar(&onMismatch, "on-mismatch", "skip", "what to do on a checksum mismatch: skip, retry, force")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "always download the catalog")
	return cmd
}
