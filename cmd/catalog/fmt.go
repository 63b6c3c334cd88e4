package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/internal/core"
)

func newFmtCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Rewrite a catalog file in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			c, err := core.Parse(f, core.WithLocale(a.cfg.Locale))
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			printWarnings(cmd.ErrOrStderr(), c.Warnings())

			var buf bytes.Buffer
			if err := core.Write(&buf, c); err != nil {
				return err
			}
			if !write {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return atomicwriter.WriteFile(path, buf.Bytes(), info.Mode().Perm())
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}
