package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/client"
	"github.com/git-pkgs/catalog/internal/core"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <catalog-url> <id|name|purl>",
		Short: "Show every property of one listing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.load(cmd.Context(), args[0], nil, false)
			if err != nil {
				return err
			}
			l, err := findListing(res.Catalog, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, key := range l.Keys() {
				fmt.Fprintf(out, "%s = %s\n", key, l.Get(key))
			}
			urls := client.BuildURLs(client.NewCatalogURLs(res.Catalog), l)
			keys := make([]string, 0, len(urls))
			for k := range urls {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintln(out)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, urls[k])
			}
			return nil
		},
	}
}

// findListing looks a listing up by identity token, UUID, package URL or
// case-insensitive name.
func findListing(c *core.Catalog, ref string) (*core.Listing, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := core.FindIdentifier(ref); ok {
		if l := c.Find(id.UUID); l != nil {
			return l, nil
		}
	}
	if u, err := uuid.Parse(ref); err == nil {
		if l := c.Find(u); l != nil {
			return l, nil
		}
	}
	if strings.HasPrefix(ref, "pkg:") {
		return client.FindListing(c, ref)
	}
	for _, l := range c.Listings() {
		if strings.EqualFold(l.Name(), ref) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("no listing matches %q", ref)
}
