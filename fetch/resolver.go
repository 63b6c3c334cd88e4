package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/git-pkgs/catalog/internal/core"
)

var ErrNoDownloadURL = errors.New("no download URL available")

// ManifestName is the file a catalog URL points at when it names a directory.
const ManifestName = "catalog.txt"

// Resolver determines download URLs for listings of one catalog.
type Resolver struct {
	catalog *core.Catalog
}

// NewResolver creates a resolver for the listings of c.
func NewResolver(c *core.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// ArtifactInfo contains information about a downloadable bundle.
type ArtifactInfo struct {
	URL       string
	Filename  string
	Integrity string // digest declared by the listing, possibly empty
}

// Resolve returns the absolute download URL and file name of a listing.
func (r *Resolver) Resolve(l *core.Listing) (*ArtifactInfo, error) {
	if strings.TrimSpace(l.URL()) == "" {
		return nil, fmt.Errorf("%s: %w", l.Name(), ErrNoDownloadURL)
	}
	u, err := r.catalog.ResolveURL(l)
	if err != nil {
		return nil, err
	}
	name := filenameFromURL(u)
	if name == "" {
		return nil, fmt.Errorf("%s: %w", l.Name(), ErrNoDownloadURL)
	}
	return &ArtifactInfo{
		URL:       u.String(),
		Filename:  name,
		Integrity: l.Digest(),
	}, nil
}

// CatalogURL normalizes a configured catalog location. A URL that does not
// name a .txt file is treated as a directory holding catalog.txt.
func CatalogURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("catalog url %q: %w", raw, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("catalog url %q is not absolute", raw)
	}
	if strings.EqualFold(path.Ext(u.Path), ".txt") {
		return u, nil
	}
	out := *u
	if !strings.HasSuffix(out.Path, "/") {
		out.Path += "/"
	}
	out.Path += ManifestName
	out.RawPath = ""
	return &out, nil
}

func filenameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
