// Package catalog reads, classifies and installs plugin catalogs.
//
// A catalog is a text manifest listing installable bundles. This package
// loads catalogs, compares their listings against the installed bundles,
// resolves "requires" dependencies and installs the selected listings.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/catalog"
//		_ "github.com/git-pkgs/catalog/codec/all"
//	)
//
//	ld := catalog.NewLoader()
//	res, err := ld.Load(context.Background(), "https://plugins.example.org/se3/", catalog.LoadOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, l := range res.Catalog.Listings()[:res.Catalog.Size()] {
//		fmt.Println(l.Name(), catalog.Classify(l, installed, host))
//	}
//
// Import codec/all, or the individual codec packages, so compressed
// bundles can be unpacked.
package catalog

import (
	"io"

	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/catalog/client"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/install"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/loader"
)

// Re-export types from internal/core
type (
	// Catalog is a parsed catalog.
	Catalog = core.Catalog

	// Listing is one bundle described by a catalog.
	Listing = core.Listing

	// Identifier names a bundle revision.
	Identifier = core.Identifier

	// State is a listing's relationship to the installed bundles.
	State = core.State

	// Host describes the running host application.
	Host = core.Host

	// Installed answers questions about installed bundles.
	Installed = core.Installed

	// Warning is a non-fatal policy problem.
	Warning = core.Warning

	// SeenStore persists the newest listing date already reported.
	SeenStore = core.SeenStore

	// Option configures a Catalog.
	Option = core.Option
)

// Re-export loader and installer types
type (
	Loader       = loader.Loader
	LoadOptions  = loader.LoadOptions
	Result       = loader.Result
	Orchestrator = install.Orchestrator
	Installer    = install.Installer
	BatchResult  = install.BatchResult
)

// Re-export constants
const (
	NotInstalled       = core.NotInstalled
	UpToDate           = core.UpToDate
	OutOfDate          = core.OutOfDate
	OutOfDateLegacy    = core.OutOfDateLegacy
	InstalledIsNewer   = core.InstalledIsNewer
	RequiresHostUpdate = core.RequiresHostUpdate
)

// Re-export errors
var (
	ErrLocked            = core.ErrLocked
	ErrDuplicateID       = core.ErrDuplicateID
	ErrInvalidIdentifier = core.ErrInvalidIdentifier
	ErrMissingKey        = core.ErrMissingKey
	ErrNotFound          = fetch.ErrNotFound
	ErrChecksumMismatch  = install.ErrChecksumMismatch
	ErrCancelled         = install.ErrCancelled
)

// Error types
type (
	ParseError      = core.ParseError
	MissingKeyError = core.MissingKeyError
	StatusError     = fetch.StatusError
)

// Catalog options
var (
	WithBaseURL   = core.WithBaseURL
	WithHost      = core.WithHost
	WithInstalled = core.WithInstalled
	WithLocale    = core.WithLocale
)

// Parse reads a catalog.
func Parse(r io.Reader, opts ...Option) (*Catalog, error) {
	return core.Parse(r, opts...)
}

// Write serializes a catalog.
func Write(w io.Writer, c *Catalog) error {
	return core.Write(w, c)
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...Option) *Catalog {
	return core.NewCatalog(opts...)
}

// ParseIdentifier parses an identity token.
func ParseIdentifier(token string) (Identifier, error) {
	return core.ParseIdentifier(token)
}

// Classify determines the state of a listing.
func Classify(l *Listing, installed Installed, host Host) State {
	return core.Classify(l, installed, host)
}

// ResolveClosure flags everything the flagged listings require.
func ResolveClosure(c *Catalog, installed Installed) []Warning {
	return core.ResolveClosure(c, installed)
}

// RestartRequired reports whether installing the flagged listings needs a
// host restart.
func RestartRequired(c *Catalog, installed Installed) bool {
	return core.RestartRequired(c, installed)
}

// NewLoader creates a catalog loader.
func NewLoader(opts ...loader.Option) *Loader {
	return loader.New(opts...)
}

// NewOrchestrator creates an install orchestrator.
func NewOrchestrator(in Installer, opts ...install.Option) *Orchestrator {
	return install.New(in, opts...)
}

// BuildURLs returns the homepage, download and package URL of a listing.
func BuildURLs(c *Catalog, l *Listing) map[string]string {
	return client.BuildURLs(client.NewCatalogURLs(c), l)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// FindListing returns the listing of c a package URL refers to.
func FindListing(c *Catalog, purlStr string) (*Listing, error) {
	return client.FindListing(c, purlStr)
}
