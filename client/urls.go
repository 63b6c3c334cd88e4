// Package client builds the URLs a listing is known by: its homepage, its
// resolved download location and its package URL.
package client

import (
	"github.com/git-pkgs/catalog/internal/core"
)

// URLBuilder constructs URLs for a catalog listing.
type URLBuilder interface {
	Homepage(l *core.Listing) string
	Download(l *core.Listing) string
	PURL(l *core.Listing) string
}

// CatalogURLs is the URLBuilder for listings of one catalog.
type CatalogURLs struct {
	Catalog *core.Catalog
}

// NewCatalogURLs returns a URL builder for listings of c.
func NewCatalogURLs(c *core.Catalog) *CatalogURLs {
	return &CatalogURLs{Catalog: c}
}

func (u *CatalogURLs) Homepage(l *core.Listing) string {
	return l.Homepage()
}

func (u *CatalogURLs) Download(l *core.Listing) string {
	resolved, err := u.Catalog.ResolveURL(l)
	if err != nil {
		return ""
	}
	return resolved.String()
}

func (u *CatalogURLs) PURL(l *core.Listing) string {
	p, err := NewPURL(l, u.Download(l))
	if err != nil {
		return ""
	}
	return p.String()
}

// BuildURLs returns a map of all non-empty URLs for a listing.
// Keys are "homepage", "download" and "purl".
func BuildURLs(urls URLBuilder, l *core.Listing) map[string]string {
	result := make(map[string]string)
	if v := urls.Homepage(l); v != "" {
		result["homepage"] = v
	}
	if v := urls.Download(l); v != "" {
		result["download"] = v
	}
	if v := urls.PURL(l); v != "" {
		result["purl"] = v
	}
	return result
}
