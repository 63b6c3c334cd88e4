// Package plugindir keeps installed bundles in a directory, with an index
// file recording the identity of each bundle.
package plugindir

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/catalog/internal/core"
)

const (
	indexName = "installed.yaml"
	lockName  = ".installed.lock"

	// identityScan is how much of a bundle is searched for its identifier.
	identityScan = 64 << 10

	lockRetry = 25 * time.Millisecond
)

// ErrNotInstalled is returned for unknown bundle UUIDs.
var ErrNotInstalled = errors.New("bundle not installed")

// Entry is one installed bundle.
type Entry struct {
	File          string `yaml:"file"`
	ID            string `yaml:"id"`
	PendingDelete bool   `yaml:"pending_delete,omitempty"`
}

type index struct {
	Bundles []Entry `yaml:"bundles"`
}

// Dir is a plugin directory. It implements install.Installer.
type Dir struct {
	root string
	lock *flock.Flock
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dir) {
		d.log = l
	}
}

// Open opens or creates the plugin directory at root.
func Open(ctx context.Context, root string, opts ...Option) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	d := &Dir{
		root:    root,
		lock:    flock.New(filepath.Join(root, lockName)),
		log:     zerolog.Nop(),
		entries: make(map[uuid.UUID]Entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.withLock(ctx, d.load); err != nil {
		return nil, err
	}
	return d, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) withLock(ctx context.Context, fn func() error) error {
	ok, err := d.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking plugin directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("locking plugin directory: %s is held", d.lock.Path())
	}
	defer func() { _ = d.lock.Unlock() }()
	return fn()
}

func (d *Dir) load() error {
	data, err := os.ReadFile(filepath.Join(d.root, indexName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var idx index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parsing %s: %w", indexName, err)
	}
	for _, e := range idx.Bundles {
		id, err := core.ParseIdentifier(e.ID)
		if err != nil {
			d.log.Warn().Err(err).Str("file", e.File).Msg("ignoring index entry")
			continue
		}
		d.entries[id.UUID] = e
	}
	return nil
}

// save writes the index. The caller holds d.mu.
func (d *Dir) save() error {
	idx := index{Bundles: d.sortedLocked()}
	data, err := yaml.Marshal(&idx)
	if err != nil {
		return err
	}
	return d.withLock(context.Background(), func() error {
		return atomicwriter.WriteFile(filepath.Join(d.root, indexName), data, 0o644)
	})
}

func (d *Dir) sortedLocked() []Entry {
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// Entries returns the installed bundles sorted by file name.
func (d *Dir) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedLocked()
}

// InstalledIdentity returns the identifier of an installed bundle. Bundles
// waiting for deletion count as not installed.
func (d *Dir) InstalledIdentity(id uuid.UUID) (core.Identifier, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok || e.PendingDelete {
		return core.Identifier{}, false
	}
	parsed, err := core.ParseIdentifier(e.ID)
	return parsed, err == nil
}

// HasLegacyBundle reports whether fileName is in the directory without an
// index entry.
func (d *Dir) HasLegacyBundle(fileName string) bool {
	if fileName == "" || fileName == indexName || fileName == lockName {
		return false
	}
	d.mu.Lock()
	for _, e := range d.entries {
		if e.File == fileName {
			d.mu.Unlock()
			return false
		}
	}
	d.mu.Unlock()
	_, err := os.Stat(filepath.Join(d.root, fileName))
	return err == nil
}

// Snapshot returns a point-in-time view of the installed bundles.
func (d *Dir) Snapshot(context.Context) (core.Installed, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := snapshot{ids: make(map[uuid.UUID]core.Identifier, len(d.entries)), files: make(map[string]bool)}
	for u, e := range d.entries {
		s.files[e.File] = true
		if e.PendingDelete {
			continue
		}
		if id, err := core.ParseIdentifier(e.ID); err == nil {
			s.ids[u] = id
		}
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || name == indexName || name == lockName || s.files[name] {
			continue
		}
		s.legacy = append(s.legacy, name)
	}
	return s, nil
}

type snapshot struct {
	ids    map[uuid.UUID]core.Identifier
	files  map[string]bool
	legacy []string
}

func (s snapshot) InstalledIdentity(id uuid.UUID) (core.Identifier, bool) {
	v, ok := s.ids[id]
	return v, ok
}

func (s snapshot) HasLegacyBundle(name string) bool {
	for _, l := range s.legacy {
		if l == name {
			return true
		}
	}
	return false
}

// Identify finds the identifier a bundle carries near its start.
func Identify(path string) (core.Identifier, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Identifier{}, false, err
	}
	defer func() { _ = f.Close() }()

	head, err := io.ReadAll(io.LimitReader(bufio.NewReader(f), identityScan))
	if err != nil {
		return core.Identifier{}, false, err
	}
	id, ok := core.FindIdentifier(string(head))
	return id, ok, nil
}

// InstallBundle copies the bundle into the directory. Replacing an
// installed revision of the same bundle requires a restart.
func (d *Dir) InstallBundle(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, identified, err := Identify(path)
	if err != nil {
		return false, err
	}
	name := filepath.Base(path)
	if err := d.copyIn(path, name); err != nil {
		return false, fmt.Errorf("copying %s: %w", name, err)
	}

	if !identified {
		d.log.Warn().Str("file", name).Msg("bundle carries no identifier, installed as legacy")
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	prev, existed := d.entries[id.UUID]
	if existed && prev.File != name {
		if err := os.Remove(filepath.Join(d.root, prev.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn().Err(err).Str("file", prev.File).Msg("removing previous revision")
		}
	}
	d.entries[id.UUID] = Entry{File: name, ID: id.String()}
	if err := d.save(); err != nil {
		return false, err
	}
	d.log.Info().Str("file", name).Str("id", id.String()).Bool("update", existed).Msg("bundle installed")
	return existed && !prev.PendingDelete, nil
}

func (d *Dir) copyIn(src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	w, err := atomicwriter.New(filepath.Join(d.root, name), 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// DeleteBundle removes an installed bundle. It returns false when the file
// could not be removed, for example because the host has it open.
func (d *Dir) DeleteBundle(id uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return false, ErrNotInstalled
	}
	if err := os.Remove(filepath.Join(d.root, e.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.log.Warn().Err(err).Str("file", e.File).Msg("bundle could not be deleted now")
		return false, nil
	}
	delete(d.entries, id)
	return true, d.save()
}

// DeleteOnRestart marks a bundle for removal by ApplyPendingDeletes.
func (d *Dir) DeleteOnRestart(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return ErrNotInstalled
	}
	e.PendingDelete = true
	d.entries[id] = e
	return d.save()
}

// ApplyPendingDeletes removes the bundles marked by DeleteOnRestart. Call
// it when the host starts, before any bundle is loaded.
func (d *Dir) ApplyPendingDeletes() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for id, e := range d.entries {
		if !e.PendingDelete {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		delete(d.entries, id)
	}
	if err := d.save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
