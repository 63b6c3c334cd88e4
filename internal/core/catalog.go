package core

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Catalog is an ordered collection of listings parsed from one catalog
// source. Hidden listings are always kept after the visible ones, so the
// first Size() indices are exactly the visible listings.
type Catalog struct {
	baseURL   *url.URL
	host      Host
	installed Installed
	locale    string

	mu       sync.Mutex // guards everything below
	comments []string
	listings []*Listing
	flags    []bool
	hidden   int
	warnings []Warning

	slot      chan struct{}
	cancelled atomic.Bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithBaseURL sets the URL that relative download links resolve against.
func WithBaseURL(u *url.URL) Option {
	return func(c *Catalog) {
		c.baseURL = u
	}
}

// WithHost sets the host that listings must be compatible with.
func WithHost(h Host) Option {
	return func(c *Catalog) {
		c.host = h
	}
}

// WithInstalled sets the installed-bundle snapshot used to decide whether
// "hidden: depends" listings are shown.
func WithInstalled(in Installed) Option {
	return func(c *Catalog) {
		c.installed = in
	}
}

// WithLocale sets the locale used for localized key lookups.
func WithLocale(locale string) Option {
	return func(c *Catalog) {
		c.locale = locale
	}
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{
		installed: NoneInstalled{},
		slot:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.installed == nil {
		c.installed = NoneInstalled{}
	}
	return c
}

// BaseURL returns the catalog's base URL, or nil.
func (c *Catalog) BaseURL() *url.URL { return c.baseURL }

// Host returns the host listings were checked against.
func (c *Catalog) Host() Host { return c.host }

// Installed returns the installed snapshot the catalog was built with.
func (c *Catalog) Installed() Installed { return c.installed }

// Locale returns the lookup locale.
func (c *Catalog) Locale() string { return c.locale }

// Comments returns the leading comment lines.
func (c *Catalog) Comments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.comments...)
}

// SetComments replaces the leading comment lines.
func (c *Catalog) SetComments(lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comments = append([]string(nil), lines...)
}

// Add inserts a listing. It returns false without error when the listing
// is dropped because the host cannot run it.
func (c *Catalog) Add(l *Listing) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := l.ID()
	if c.indexOfLocked(id.UUID) >= 0 {
		return false, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	l.locale = c.locale
	if !c.host.Accepts(l) {
		c.warnings = append(c.warnings, Warning{Kind: WarnIncompatible, Listing: l.Name(), Token: id.String()})
		return false, nil
	}

	if c.hides(l) {
		c.listings = append(c.listings, l)
		c.flags = append(c.flags, false)
		c.hidden++
		return true, nil
	}

	at := len(c.listings) - c.hidden
	c.listings = append(c.listings, nil)
	copy(c.listings[at+1:], c.listings[at:])
	c.listings[at] = l
	c.flags = append(c.flags, false)
	copy(c.flags[at+1:], c.flags[at:])
	c.flags[at] = false
	return true, nil
}

func (c *Catalog) hides(l *Listing) bool {
	switch l.Hidden() {
	case HiddenYes:
		return true
	case HiddenDepends:
		return !isUpdateTo(l, c.installed)
	default:
		return false
	}
}

// Remove deletes the listing at index i.
func (c *Catalog) Remove(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i >= len(c.listings)-c.hidden {
		c.hidden--
	}
	c.listings = append(c.listings[:i], c.listings[i+1:]...)
	c.flags = append(c.flags[:i], c.flags[i+1:]...)
}

// Size returns the number of visible listings.
func (c *Catalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listings) - c.hidden
}

// TrueSize returns the number of listings including hidden ones.
func (c *Catalog) TrueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listings)
}

// HiddenCount returns the number of hidden listings.
func (c *Catalog) HiddenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

// Get returns the listing at index i. Indices below Size() are visible.
func (c *Catalog) Get(i int) *Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listings[i]
}

// Listings returns all listings, visible ones first.
func (c *Catalog) Listings() []*Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Listing(nil), c.listings...)
}

// IndexOf returns the index of the listing with the given UUID, or -1.
func (c *Catalog) IndexOf(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOfLocked(id)
}

func (c *Catalog) indexOfLocked(id uuid.UUID) int {
	for i, l := range c.listings {
		if l.ID().UUID == id {
			return i
		}
	}
	return -1
}

// Find returns the listing with the given UUID, or nil.
func (c *Catalog) Find(id uuid.UUID) *Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfLocked(id); i >= 0 {
		return c.listings[i]
	}
	return nil
}

// Warnings returns the policy warnings collected while adding listings.
func (c *Catalog) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// ResolveURL returns the absolute download URL of a listing.
func (c *Catalog) ResolveURL(l *Listing) (*url.URL, error) {
	u, err := url.Parse(l.URL())
	if err != nil {
		return nil, fmt.Errorf("listing %s: bad url: %w", l.Name(), err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.baseURL == nil {
		return nil, fmt.Errorf("listing %s: relative url %q without a catalog base", l.Name(), l.URL())
	}
	return c.baseURL.ResolveReference(u), nil
}

// SetFlag marks or unmarks the listing at index i for installation.
func (c *Catalog) SetFlag(i int, install bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[i] = install
}

// Flag reports whether the listing at index i is marked for installation.
func (c *Catalog) Flag(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[i]
}

// FlagSet returns a copy of the install flags.
func (c *Catalog) FlagSet() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.flags...)
}

// SetFlagSet replaces the install flags. The slice must match TrueSize.
func (c *Catalog) SetFlagSet(flags []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(flags) != len(c.flags) {
		return fmt.Errorf("flag set has %d entries, catalog has %d listings", len(flags), len(c.flags))
	}
	copy(c.flags, flags)
	return nil
}

// ClearFlags unmarks every listing.
func (c *Catalog) ClearFlags() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.flags {
		c.flags[i] = false
	}
}

// FlaggedCount returns the number of listings marked for installation.
func (c *Catalog) FlaggedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.flags {
		if f {
			n++
		}
	}
	return n
}

// Flagged returns the marked listings in catalog order.
func (c *Catalog) Flagged() []*Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Listing
	for i, f := range c.flags {
		if f {
			out = append(out, c.listings[i])
		}
	}
	return out
}

// Acquire takes the catalog's single install slot. Only one install batch
// may run per catalog; Acquire waits for the current one to finish. The
// cancellation flag is reset for the new batch.
func (c *Catalog) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.cancelled.Store(false)
	var once sync.Once
	return func() {
		once.Do(func() { <-c.slot })
	}, nil
}

// TryAcquire is like Acquire but fails immediately when a batch is running.
func (c *Catalog) TryAcquire() (release func(), ok bool) {
	select {
	case c.slot <- struct{}{}:
	default:
		return nil, false
	}
	c.cancelled.Store(false)
	var once sync.Once
	return func() {
		once.Do(func() { <-c.slot })
	}, true
}

// Cancel asks the running install batch to stop.
func (c *Catalog) Cancel() { c.cancelled.Store(true) }

// Cancelled reports whether Cancel was called during the current batch.
func (c *Catalog) Cancelled() bool { return c.cancelled.Load() }

// ResetCancel clears a pending cancellation.
func (c *Catalog) ResetCancel() { c.cancelled.Store(false) }
