package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/git-pkgs/catalog/install"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/loader"
	"github.com/rs/zerolog"
)

// ErrNoCatalogs is returned when a check has no catalog to load.
var ErrNoCatalogs = errors.New("no catalogs configured")

// CatalogLoader loads catalogs.
type CatalogLoader interface {
	LoadAll(ctx context.Context, urls []string, opts loader.LoadOptions) []loader.Result
}

// InstalledSource provides the installed bundles at the start of a check.
type InstalledSource interface {
	Snapshot(ctx context.Context) (core.Installed, error)
}

// Installer runs an install batch for the flagged listings of a catalog.
type Installer interface {
	Install(ctx context.Context, c *core.Catalog) (*install.BatchResult, error)
}

// Notifier presents check results.
type Notifier interface {
	UpdatesAvailable(ctx context.Context, r *Report) error
	OpenCatalog(ctx context.Context, url string, r *Report) error
}

// Finding is a listing a check found worth reporting.
type Finding struct {
	CatalogURL string
	Listing    *core.Listing
	State      core.State
}

// Report is the outcome of one check.
type Report struct {
	Started  time.Time
	Catalogs []loader.Result
	Updates  []Finding
	New      []Finding
	Warnings []core.Warning
	Installs []*install.BatchResult
	Action   Action
	Errors   []error
}

// HasFindings reports whether there is anything to tell the user.
func (r *Report) HasFindings() bool {
	return len(r.Updates) > 0 || len(r.New) > 0
}

// Locked reports whether any catalog was being published during the check.
func (r *Report) Locked() bool {
	for _, c := range r.Catalogs {
		if errors.Is(c.Err, core.ErrLocked) {
			return true
		}
	}
	return false
}

// Checker runs the check pipeline: load catalogs, classify listings, then
// act on what was found.
type Checker struct {
	loader    CatalogLoader
	urls      []string
	all       bool
	action    Action
	host      core.Host
	installed InstalledSource
	seen      core.SeenStore
	notifier  Notifier
	installer Installer
	log       zerolog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCatalogs sets the known catalog URLs, primary first. When all is
// false only the primary catalog is checked.
func WithCatalogs(urls []string, all bool) CheckerOption {
	return func(c *Checker) {
		c.urls = append([]string(nil), urls...)
		c.all = all
	}
}

// WithAction sets what happens when updates are found.
func WithAction(a Action) CheckerOption {
	return func(c *Checker) {
		c.action = a
	}
}

// WithHost sets the running host.
func WithHost(h core.Host) CheckerOption {
	return func(c *Checker) {
		c.host = h
	}
}

// WithInstalledSource sets where installed bundles are read from.
func WithInstalledSource(s InstalledSource) CheckerOption {
	return func(c *Checker) {
		c.installed = s
	}
}

// WithSeenStore enables "new listing" tracking.
func WithSeenStore(s core.SeenStore) CheckerOption {
	return func(c *Checker) {
		c.seen = s
	}
}

// WithNotifier sets the notifier.
func WithNotifier(n Notifier) CheckerOption {
	return func(c *Checker) {
		c.notifier = n
	}
}

// WithInstaller enables the InstallNow action.
func WithInstaller(i Installer) CheckerOption {
	return func(c *Checker) {
		c.installer = i
	}
}

// WithCheckerLogger sets the logger.
func WithCheckerLogger(l zerolog.Logger) CheckerOption {
	return func(c *Checker) {
		c.log = l
	}
}

// NewChecker creates a checker.
func NewChecker(l CatalogLoader, opts ...CheckerOption) *Checker {
	c := &Checker{loader: l, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Checker) targets() []string {
	if c.all || len(c.urls) <= 1 {
		return c.urls
	}
	return c.urls[:1]
}

// Run performs one check. It fails only when no catalog could be loaded;
// other problems are collected in Report.Errors.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	urls := c.targets()
	if len(urls) == 0 {
		return nil, ErrNoCatalogs
	}
	report := &Report{Started: time.Now(), Action: c.action}

	var installed core.Installed = core.NoneInstalled{}
	if c.installed != nil {
		snap, err := c.installed.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading installed bundles: %w", err)
		}
		installed = snap
	}

	report.Catalogs = c.loader.LoadAll(ctx, urls, loader.LoadOptions{Installed: installed})

	var newestSeen, newest time.Time
	if c.seen != nil {
		newestSeen = c.seen.NewestSeen()
	}
	var loaded int
	for _, res := range report.Catalogs {
		if res.Err != nil {
			report.Errors = append(report.Errors, res.Err)
			c.log.Warn().Err(res.Err).Str("url", res.URL).Msg("catalog unavailable for update check")
			continue
		}
		loaded++
		report.Warnings = append(report.Warnings, res.Catalog.Warnings()...)
		for _, l := range res.Catalog.Listings()[:res.Catalog.Size()] {
			state := core.Classify(l, installed, c.host)
			f := Finding{CatalogURL: res.URL, Listing: l, State: state}
			if state.IsUpdate() {
				report.Updates = append(report.Updates, f)
			}
			if c.seen != nil && state == core.NotInstalled && core.IsNew(l, newestSeen) {
				report.New = append(report.New, f)
			}
		}
		if d := core.NewestDate(res.Catalog); d.After(newest) {
			newest = d
		}
	}
	if loaded == 0 {
		return report, fmt.Errorf("update check: %w", errors.Join(report.Errors...))
	}
	if c.seen != nil && newest.After(newestSeen) {
		if err := c.seen.RecordSeen(newest); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}

	c.log.Info().
		Int("catalogs", loaded).
		Int("updates", len(report.Updates)).
		Int("new", len(report.New)).
		Str("action", c.action.String()).
		Msg("update check finished")

	if !report.HasFindings() {
		return report, nil
	}
	if err := c.act(ctx, report, installed); err != nil {
		report.Errors = append(report.Errors, err)
	}
	return report, nil
}

func (c *Checker) act(ctx context.Context, r *Report, installed core.Installed) error {
	switch {
	case c.action == InstallNow && c.installer != nil && len(r.Updates) > 0:
		return c.installUpdates(ctx, r, installed)
	case c.action == OpenBrowser && c.notifier != nil:
		return c.notifier.OpenCatalog(ctx, c.urls[0], r)
	case c.notifier != nil:
		return c.notifier.UpdatesAvailable(ctx, r)
	}
	return nil
}

func (c *Checker) installUpdates(ctx context.Context, r *Report, installed core.Installed) error {
	var errs []error
	for _, res := range r.Catalogs {
		if res.Err != nil {
			continue
		}
		cat := res.Catalog
		flagged := false
		for _, f := range r.Updates {
			if f.CatalogURL != res.URL {
				continue
			}
			if i := cat.IndexOf(f.Listing.ID().UUID); i >= 0 {
				cat.SetFlag(i, true)
				flagged = true
			}
		}
		if !flagged {
			continue
		}
		r.Warnings = append(r.Warnings, core.ResolveClosure(cat, installed)...)
		batch, err := c.installer.Install(ctx, cat)
		if batch != nil {
			r.Installs = append(r.Installs, batch)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("installing updates from %s: %w", res.URL, err))
		}
	}
	return errors.Join(errs...)
}
