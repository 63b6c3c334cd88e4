package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/internal/core"
)

func newListCmd(a *app) *cobra.Command {
	var (
		all     bool
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "list [catalog-url]",
		Short: "List the bundles of a catalog and their install state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.pluginDir(ctx)
			if err != nil {
				return err
			}
			installed, err := dir.Snapshot(ctx)
			if err != nil {
				return err
			}
			res, err := a.load(ctx, urlArg(args), installed, noCache)
			if err != nil {
				return err
			}

			c := res.Catalog
			listings := c.Listings()
			if !all {
				listings = listings[:c.Size()]
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tSTATE\tSIZE\tDATE")
			for _, l := range listings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					l.Name(),
					l.Version(),
					core.Classify(l, installed, a.host()),
					formatSize(l.Size()),
					l.Date().Format(core.DateLayout),
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), c.Warnings())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include hidden listings")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore the cached catalog")
	return cmd
}

func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
