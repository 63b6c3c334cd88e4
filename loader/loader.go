// Package loader loads catalogs from the network or, for the primary
// catalog, from the local snapshot.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/git-pkgs/catalog/cache"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Source tells where a catalog was read from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Result is one loaded catalog.
type Result struct {
	URL     string
	Catalog *core.Catalog
	Source  Source
	Err     error
}

// LoadOptions controls a single load.
type LoadOptions struct {
	// NoCache bypasses the snapshot in both directions: it is neither read
	// nor rewritten. Use it right after reloading the same catalog, while a
	// cache write may still be in flight.
	NoCache bool

	// Installed overrides the loader's installed snapshot for this load.
	Installed core.Installed
}

// Loader loads catalogs.
type Loader struct {
	fetcher     fetch.FetcherInterface
	cache       *cache.Cache
	primary     string
	host        core.Host
	installed   core.Installed
	locale      string
	concurrency int
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Loader.
type Option func(*Loader)

// WithFetcher sets the downloader.
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithCache enables the snapshot for the primary catalog URL.
func WithCache(primaryURL string, c *cache.Cache) Option {
	return func(l *Loader) {
		if u, err := fetch.CatalogURL(primaryURL); err == nil {
			l.primary = u.String()
			l.cache = c
		}
	}
}

// WithHost sets the host listings are checked against.
func WithHost(h core.Host) Option {
	return func(l *Loader) {
		l.host = h
	}
}

// WithInstalled sets the installed snapshot used for "hidden: depends".
func WithInstalled(in core.Installed) Option {
	return func(l *Loader) {
		l.installed = in
	}
}

// WithLocale sets the locale for localized keys.
func WithLocale(locale string) Option {
	return func(l *Loader) {
		l.locale = locale
	}
}

// WithConcurrency sets how many catalogs LoadAll fetches at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New creates a loader. Without WithFetcher it uses a circuit-breaking
// fetch.Fetcher.
func New(opts ...Option) *Loader {
	l := &Loader{
		installed:   core.NoneInstalled{},
		concurrency: defaultConcurrency,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fetcher == nil {
		l.fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithLogger(l.log)))
	}
	return l
}

// Primary returns the normalized primary catalog URL, or "".
func (l *Loader) Primary() string { return l.primary }

func (l *Loader) catalogOptions(base *url.URL, lo LoadOptions) []core.Option {
	installed := l.installed
	if lo.Installed != nil {
		installed = lo.Installed
	}
	return []core.Option{
		core.WithBaseURL(base),
		core.WithHost(l.host),
		core.WithInstalled(installed),
		core.WithLocale(l.locale),
	}
}

// Load loads the catalog at rawURL. A fresh snapshot of the primary catalog
// is used without a network request; any problem with the snapshot falls
// through to a download. A locked catalog fails with core.ErrLocked.
func (l *Loader) Load(ctx context.Context, rawURL string, lo LoadOptions) (*Result, error) {
	start := time.Now()
	u, err := fetch.CatalogURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts := l.catalogOptions(u, lo)
	useCache := l.cache != nil && !lo.NoCache && u.String() == l.primary

	if useCache {
		if c, ok := l.fromCache(ctx, opts); ok {
			l.done(u, SourceCache, c, start, nil)
			return &Result{URL: u.String(), Catalog: c, Source: SourceCache}, nil
		}
	}

	c, err := l.fromNetwork(ctx, u, opts, useCache)
	l.done(u, SourceNetwork, c, start, err)
	if err != nil {
		return nil, err
	}
	return &Result{URL: u.String(), Catalog: c, Source: SourceNetwork}, nil
}

func (l *Loader) fromCache(ctx context.Context, opts []core.Option) (*core.Catalog, bool) {
	data, err := l.cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrStale) {
			l.log.Warn().Err(err).Msg("catalog cache unusable, downloading")
		}
		return nil, false
	}
	c, err := core.Parse(bytes.NewReader(data), opts...)
	if err != nil {
		l.log.Warn().Err(err).Str("path", l.cache.Path()).Msg("discarding corrupt catalog cache")
		if err := l.cache.Invalidate(ctx); err != nil {
			l.log.Warn().Err(err).Msg("removing catalog cache")
		}
		return nil, false
	}
	return c, true
}

func (l *Loader) fromNetwork(ctx context.Context, u *url.URL, opts []core.Option, store bool) (*core.Catalog, error) {
	artifact, err := l.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("downloading catalog %s: %w", u, err)
	}
	defer func() { _ = artifact.Body.Close() }()

	var (
		body io.Reader = artifact.Body
		raw  bytes.Buffer
	)
	if store {
		body = io.TeeReader(artifact.Body, &raw)
	}

	c, err := core.Parse(body, opts...)
	if err != nil {
		if errors.Is(err, core.ErrLocked) {
			return nil, fmt.Errorf("%s: %w", u, core.ErrLocked)
		}
		return nil, fmt.Errorf("parsing catalog %s: %w", u, err)
	}

	if store {
		if err := l.cache.Put(ctx, raw.Bytes()); err != nil {
			l.log.Warn().Err(err).Str("path", l.cache.Path()).Msg("caching catalog")
		}
	}
	return c, nil
}

func (l *Loader) done(u *url.URL, src Source, c *core.Catalog, start time.Time, err error) {
	d := time.Since(start)
	if err != nil {
		l.metrics.RecordLoad("error", d)
		l.log.Error().Err(err).Str("url", u.String()).Dur("duration_ms", d).Msg("catalog load failed")
		return
	}
	l.metrics.RecordLoad(string(src), d)
	l.metrics.RecordListings(u.String(), c.Size(), c.HiddenCount())
	for _, w := range c.Warnings() {
		l.log.Warn().Str("url", u.String()).Str("kind", string(w.Kind)).Msg(w.String())
	}
	l.log.Info().
		Str("url", u.String()).
		Str("source", string(src)).
		Int("listings", c.Size()).
		Int("hidden", c.HiddenCount()).
		Dur("duration_ms", d).
		Msg("catalog loaded")
}

// LoadAll loads several catalogs concurrently. Results are returned in
// the order of urls; a failure only affects its own entry.
func (l *Loader) LoadAll(ctx context.Context, urls []string, lo LoadOptions) []Result {
	results := make([]Result, len(urls))
	var g errgroup.Group
	g.SetLimit(l.concurrency)

	for i, raw := range urls {
		g.Go(func() error {
			r, err := l.Load(ctx, raw, lo)
			if err != nil {
				results[i] = Result{URL: raw, Err: err}
				return nil
			}
			results[i] = *r
			return nil
		})
	}
	_ = g.Wait()
	return results
}
