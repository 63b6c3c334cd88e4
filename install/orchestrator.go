// Package install downloads, verifies and installs the flagged listings of
// a catalog.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/git-pkgs/catalog/checksum"
	"github.com/git-pkgs/catalog/codec"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxRetries bounds re-downloads after a checksum mismatch.
const DefaultMaxRetries = 3

// Installer owns the installed bundles.
type Installer interface {
	core.Installed

	// InstallBundle installs the bundle file at path and reports whether
	// the host must restart for it to take effect.
	InstallBundle(ctx context.Context, path string) (restart bool, err error)

	// DeleteBundle removes an installed bundle. It returns false when the
	// bundle is in use and could not be removed now.
	DeleteBundle(id uuid.UUID) (bool, error)

	// DeleteOnRestart schedules removal for the next start of the host.
	DeleteOnRestart(id uuid.UUID) error
}

// Progress receives user-facing progress.
type Progress interface {
	Status(text string)
	Bytes(done, total int64) // total is -1 when unknown
}

type nopProgress struct{}

func (nopProgress) Status(string)      {}
func (nopProgress) Bytes(int64, int64) {}

// Prompt decides what to do about a checksum mismatch. It may block, for
// example on a user dialog.
type Prompt interface {
	OnMismatch(ctx context.Context, l *core.Listing, expected string, actual checksum.Digest) Decision
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context, l *core.Listing, expected string, actual checksum.Digest) Decision

func (f PromptFunc) OnMismatch(ctx context.Context, l *core.Listing, expected string, actual checksum.Digest) Decision {
	return f(ctx, l, expected, actual)
}

// StageObserver is told about every stage transition.
type StageObserver func(l *core.Listing, s Stage)

// ListingResult is the outcome for one listing.
type ListingResult struct {
	Listing  *core.Listing
	Stage    Stage
	Attempts int
	Restart  bool
	Err      error
}

// BatchResult is the outcome of one Install call.
type BatchResult struct {
	Results  []ListingResult
	Restart  bool
	Warnings []core.Warning
}

// Installed returns the listings that reached StageDone.
func (b *BatchResult) Installed() []*core.Listing {
	return b.inStage(StageDone)
}

// Failed returns the listings that failed.
func (b *BatchResult) Failed() []*core.Listing {
	return b.inStage(StageFailed)
}

func (b *BatchResult) inStage(s Stage) []*core.Listing {
	var out []*core.Listing
	for _, r := range b.Results {
		if r.Stage == s {
			out = append(out, r.Listing)
		}
	}
	return out
}

// Orchestrator runs install batches.
type Orchestrator struct {
	installer  Installer
	fetcher    fetch.FetcherInterface
	prompt     Prompt
	progress   Progress
	observer   StageObserver
	hooks      *Hooks
	tempDir    string
	maxRetries int
	noWait     bool
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher sets the bundle downloader.
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(o *Orchestrator) {
		o.fetcher = f
	}
}

// WithPrompt sets the mismatch prompt. The default skips mismatched bundles.
func WithPrompt(p Prompt) Option {
	return func(o *Orchestrator) {
		o.prompt = p
	}
}

// WithProgress sets the progress sink.
func WithProgress(p Progress) Option {
	return func(o *Orchestrator) {
		o.progress = p
	}
}

// WithStageObserver sets a stage observer.
func WithStageObserver(fn StageObserver) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithHooks sets the post-install hook registry.
func WithHooks(h *Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// WithTempDir sets where per-listing download directories are created.
func WithTempDir(dir string) Option {
	return func(o *Orchestrator) {
		o.tempDir = dir
	}
}

// WithMaxRetries bounds re-downloads after a mismatch.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		o.maxRetries = n
	}
}

// WithNoWait makes Install fail with ErrBusy instead of waiting for a
// running batch on the same catalog.
func WithNoWait() Option {
	return func(o *Orchestrator) {
		o.noWait = true
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator installing through installer.
func New(installer Installer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		installer:  installer,
		progress:   nopProgress{},
		hooks:      &Hooks{},
		maxRetries: DefaultMaxRetries,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithLogger(o.log)))
	}
	return o
}

// Hooks returns the post-install hook registry.
func (o *Orchestrator) Hooks() *Hooks { return o.hooks }

// Install installs every flagged listing of c in catalog order. Per-listing
// failures are recorded in the result and do not stop the batch. The flags
// are cleared and the hooks fired when the batch ends, whatever happened.
// If the batch was cancelled the result is returned with ErrCancelled.
func (o *Orchestrator) Install(ctx context.Context, c *core.Catalog) (*BatchResult, error) {
	release, err := o.acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	done := o.metrics.BatchStarted()
	defer done()

	listings := c.Flagged()
	batch := &BatchResult{}
	defer func() {
		c.ClearFlags()
		o.hooks.Fire(batch)
	}()

	resolver := fetch.NewResolver(c)
	o.log.Info().Int("listings", len(listings)).Msg("install batch started")

	for i, l := range listings {
		if cancelled(ctx, c) {
			for _, rest := range listings[i:] {
				batch.Results = append(batch.Results, ListingResult{Listing: rest, Stage: StageCancelled, Err: ErrCancelled})
				o.notify(rest, StageCancelled)
			}
			break
		}
		res := o.installOne(ctx, c, resolver, l, batch)
		batch.Restart = batch.Restart || res.Restart
		batch.Results = append(batch.Results, res)
		o.metrics.RecordInstall(res.Stage.String())
	}

	o.log.Info().
		Int("installed", len(batch.Installed())).
		Int("failed", len(batch.Failed())).
		Bool("restart", batch.Restart).
		Msg("install batch finished")

	if cancelled(ctx, c) {
		return batch, ErrCancelled
	}
	return batch, nil
}

func (o *Orchestrator) acquire(ctx context.Context, c *core.Catalog) (func(), error) {
	if o.noWait {
		release, ok := c.TryAcquire()
		if !ok {
			return nil, ErrBusy
		}
		return release, nil
	}
	return c.Acquire(ctx)
}

func cancelled(ctx context.Context, c *core.Catalog) bool {
	return ctx.Err() != nil || c.Cancelled()
}

func (o *Orchestrator) notify(l *core.Listing, s Stage) {
	if o.observer != nil {
		o.observer(l, s)
	}
}

func (o *Orchestrator) installOne(ctx context.Context, c *core.Catalog, resolver *fetch.Resolver, l *core.Listing, batch *BatchResult) ListingResult {
	res := ListingResult{Listing: l}
	log := o.log.With().Str("listing", l.Name()).Str("id", l.ID().String()).Logger()
	stage := func(s Stage) {
		res.Stage = s
		o.notify(l, s)
	}
	fail := func(s Stage, err error) ListingResult {
		res.Err = err
		stage(s)
		ev := log.Warn()
		if s == StageFailed {
			ev = log.Error()
		}
		ev.Err(err).Str("stage", s.String()).Msg("bundle not installed")
		return res
	}

	stage(StagePending)
	info, err := resolver.Resolve(l)
	if err != nil {
		return fail(StageFailed, err)
	}

	dir, err := os.MkdirTemp(o.tempDir, "catalog-install-*")
	if err != nil {
		return fail(StageFailed, fmt.Errorf("creating download directory: %w", err))
	}
	defer func() { _ = os.RemoveAll(dir) }()

	var path string
	for {
		res.Attempts++
		stage(StageDownloading)
		o.progress.Status(downloadStatus(l))

		var sum checksum.Digest
		path, sum, err = o.download(ctx, c, info, dir, l.Size())
		o.metrics.RecordDownload(fileSize(path), err)
		if errors.Is(err, ErrCancelled) {
			return fail(StageCancelled, err)
		}
		if err != nil {
			return fail(StageFailed, err)
		}

		stage(StageVerifying)
		if sum.Matches(info.Integrity) {
			break
		}
		o.metrics.RecordMismatch()
		log.Warn().Str("expected", info.Integrity).Str("actual", sum.String()).Int("attempt", res.Attempts).Msg("checksum mismatch")

		stage(StageRetryPrompt)
		mismatch := &MismatchError{Listing: l.Name(), Expected: info.Integrity, Actual: sum.String(), Attempts: res.Attempts}
		decision := Skip
		if o.prompt != nil {
			decision = o.prompt.OnMismatch(ctx, l, info.Integrity, sum)
		}
		if decision == Force {
			log.Warn().Msg("installing despite checksum mismatch")
			break
		}
		if decision == Retry && res.Attempts <= o.maxRetries {
			continue
		}
		return fail(StageSkipped, mismatch)
	}

	stage(StageUnpacking)
	o.progress.Status("Unpacking " + l.Name())
	bundle, err := codec.Decompress(path, dir)
	if err != nil {
		return fail(StageFailed, err)
	}

	stage(StageInstalling)
	o.progress.Status("Installing " + l.Name())
	restart, err := o.installer.InstallBundle(ctx, bundle)
	if err != nil {
		return fail(StageFailed, fmt.Errorf("installing %s: %w", l.Name(), err))
	}
	res.Restart = restart

	if o.removeReplaced(l, batch, log) {
		res.Restart = true
	}

	stage(StageDone)
	log.Info().Bool("restart", res.Restart).Int("attempts", res.Attempts).Msg("bundle installed")
	return res
}

// removeReplaced deletes the installed bundles that l supersedes and
// reports whether any of them has to wait for a restart.
func (o *Orchestrator) removeReplaced(l *core.Listing, batch *BatchResult, log zerolog.Logger) bool {
	restart := false
	for _, token := range l.Replaces() {
		id, err := core.ParseIdentifier(token)
		if err != nil {
			batch.Warnings = append(batch.Warnings, core.Warning{Kind: core.WarnBadReplacement, Listing: l.Name(), Token: token})
			continue
		}
		if id.UUID == l.ID().UUID {
			continue
		}
		if _, ok := o.installer.InstalledIdentity(id.UUID); !ok {
			continue
		}
		deleted, err := o.installer.DeleteBundle(id.UUID)
		if err == nil && deleted {
			log.Info().Str("replaced", id.UUID.String()).Msg("removed superseded bundle")
			continue
		}
		if err := o.installer.DeleteOnRestart(id.UUID); err != nil {
			log.Error().Err(err).Str("replaced", id.UUID.String()).Msg("scheduling removal of superseded bundle")
		}
		restart = true
	}
	return restart
}

func downloadStatus(l *core.Listing) string {
	if size := l.Size(); size > 0 {
		return fmt.Sprintf("Downloading %s (%s)", l.Name(), humanize.Bytes(uint64(size)))
	}
	return "Downloading " + l.Name()
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
