// Package cache keeps a time-boxed local snapshot of the primary catalog.
//
// There is a single snapshot file per process. Access is serialized with a
// process-wide mutex and, across processes, with a lock file next to the
// snapshot. Snapshots are replaced atomically, so a failed write never
// leaves a truncated catalog behind.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
)

var (
	// ErrMiss is returned when there is no snapshot.
	ErrMiss = errors.New("no cached catalog")

	// ErrStale is returned when the snapshot is older than the freshness window.
	ErrStale = errors.New("cached catalog is stale")

	// ErrTooLarge is returned by Store when the input exceeds MaxSize.
	ErrTooLarge = errors.New("catalog too large to cache")
)

const (
	// DefaultWindow is how long a snapshot is used without asking the server.
	DefaultWindow = 2 * time.Hour

	// MaxSize bounds the size of a cached catalog.
	MaxSize = 32 << 20

	lockRetry = 25 * time.Millisecond
)

// processMu serializes all snapshot access in this process.
var processMu sync.Mutex

// Cache is the primary catalog snapshot.
type Cache struct {
	path   string
	window time.Duration
	clock  clock.Clock
	log    zerolog.Logger
	lock   *flock.Flock
}

// Option configures a Cache.
type Option func(*Cache)

// WithWindow sets the freshness window.
func WithWindow(d time.Duration) Option {
	return func(c *Cache) {
		c.window = d
	}
}

// WithClock sets the clock used to age snapshots.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// New creates a cache whose snapshot lives at path.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		path:   path,
		window: DefaultWindow,
		clock:  clock.New(),
		log:    zerolog.Nop(),
		lock:   flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the snapshot path.
func (c *Cache) Path() string { return c.path }

// Window returns the freshness window.
func (c *Cache) Window() time.Duration { return c.window }

func (c *Cache) withLock(ctx context.Context, fn func() error) error {
	processMu.Lock()
	defer processMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	ok, err := c.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking cache: %w", err)
	}
	if !ok {
		return fmt.Errorf("locking cache: %s is held", c.lock.Path())
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.log.Warn().Err(err).Str("path", c.lock.Path()).Msg("unlocking cache")
		}
	}()
	return fn()
}

// Age returns how old the snapshot is.
func (c *Cache) Age() (time.Duration, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrMiss
		}
		return 0, err
	}
	return c.clock.Now().Sub(info.ModTime()), nil
}

// Get returns the snapshot if it is younger than the freshness window.
func (c *Cache) Get(ctx context.Context) ([]byte, error) {
	var data []byte
	err := c.withLock(ctx, func() error {
		age, err := c.Age()
		if err != nil {
			return err
		}
		if age >= c.window {
			return fmt.Errorf("%w: %s old", ErrStale, age.Truncate(time.Second))
		}
		data, err = os.ReadFile(c.path)
		if errors.Is(err, os.ErrNotExist) {
			return ErrMiss
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("path", c.path).Int("bytes", len(data)).Msg("using cached catalog")
	return data, nil
}

// Put atomically replaces the snapshot with data.
func (c *Cache) Put(ctx context.Context, data []byte) error {
	return c.withLock(ctx, func() error {
		return c.write(data)
	})
}

// Store reads r to the end and replaces the snapshot with what it read.
// Nothing is written unless the whole input was read.
func (c *Cache) Store(ctx context.Context, r io.Reader) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxSize+1))
	if err != nil {
		return fmt.Errorf("reading catalog for cache: %w", err)
	}
	if n > MaxSize {
		return ErrTooLarge
	}
	return c.Put(ctx, buf.Bytes())
}

func (c *Cache) write(data []byte) error {
	w, err := atomicwriter.New(c.path, 0o644)
	if err != nil {
		return fmt.Errorf("opening cache for write: %w", err)
	}
	_, werr := w.Write(data)
	cerr := w.Close()
	if werr != nil || cerr != nil {
		// The writer removes its temporary file itself; if that failed the
		// leftover is swept by Cleanup.
		deferSweep(filepath.Dir(c.path), filepath.Base(c.path))
		return fmt.Errorf("writing cache: %w", errors.Join(werr, cerr))
	}
	c.log.Debug().Str("path", c.path).Int("bytes", len(data)).Msg("catalog cached")
	return nil
}

// Invalidate deletes the snapshot. If the file cannot be removed now, it
// is removed by Cleanup.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.withLock(ctx, func() error {
		err := os.Remove(c.path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		deferRemove(c.path)
		return fmt.Errorf("removing cache: %w", err)
	})
}
