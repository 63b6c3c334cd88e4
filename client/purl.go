package client

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	packageurl "github.com/package-url/packageurl-go"

	"github.com/git-pkgs/catalog/internal/core"
)

// PURLType is the package URL type used for catalog listings.
var PURLType = packageurl.TypeGeneric

// Qualifier keys written into listing package URLs.
const (
	QualifierCatalogID   = "catalog_id"
	QualifierDownloadURL = "download_url"
	QualifierChecksum    = "checksum"
)

// PURL wraps packageurl.PackageURL with catalog-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// NewPURL returns the package URL of a listing. downloadURL may be empty.
func NewPURL(l *core.Listing, downloadURL string) (*PURL, error) {
	name := slug(l.Name())
	if name == "" {
		return nil, fmt.Errorf("listing %s has no usable name", l.ID())
	}

	q := map[string]string{QualifierCatalogID: l.ID().UUID.String()}
	if downloadURL != "" {
		q[QualifierDownloadURL] = downloadURL
	}
	if d := l.Digest(); d != "" {
		q[QualifierChecksum] = d
	}

	version := l.Version()
	if version == "" {
		version = l.ID().Date.Format(core.DateLayout)
	}

	p := packageurl.NewPackageURL(PURLType, "", name, version, packageurl.QualifiersFromMap(q), "")
	return &PURL{*p}, nil
}

// ParsePURL parses a package URL string.
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// String formats the package URL.
func (p PURL) String() string {
	return p.ToString()
}

// CatalogID returns the bundle UUID carried in the catalog_id qualifier.
func (p PURL) CatalogID() (uuid.UUID, bool) {
	v, ok := p.Qualifiers.Map()[QualifierCatalogID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// FindListing returns the listing a package URL refers to. The catalog_id
// qualifier is preferred; otherwise the name is matched.
func FindListing(c *core.Catalog, purl string) (*core.Listing, error) {
	p, err := ParsePURL(purl)
	if err != nil {
		return nil, err
	}
	if id, ok := p.CatalogID(); ok {
		if l := c.Find(id); l != nil {
			return l, nil
		}
	}
	for _, l := range c.Listings() {
		if slug(l.Name()) == p.Name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("no listing for %s", purl)
}

func slug(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, "-")
}
