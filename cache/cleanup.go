package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

var pending struct {
	sync.Mutex
	files  map[string]bool
	sweeps map[string]string // dir -> snapshot base name
}

func deferRemove(path string) {
	pending.Lock()
	defer pending.Unlock()
	if pending.files == nil {
		pending.files = make(map[string]bool)
	}
	pending.files[path] = true
}

func deferSweep(dir, base string) {
	pending.Lock()
	defer pending.Unlock()
	if pending.sweeps == nil {
		pending.sweeps = make(map[string]string)
	}
	pending.sweeps[dir] = base
}

// Pending returns the files waiting for Cleanup.
func Pending() []string {
	pending.Lock()
	defer pending.Unlock()
	out := make([]string, 0, len(pending.files))
	for f := range pending.files {
		out = append(out, f)
	}
	return out
}

// Cleanup removes snapshot files that could not be removed when they were
// discarded, along with temporary files left by failed writes. Call it
// before the process exits.
func Cleanup() error {
	pending.Lock()
	defer pending.Unlock()

	var errs []error
	for f := range pending.files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		delete(pending.files, f)
	}
	for dir, base := range pending.sweeps {
		leftovers, _ := filepath.Glob(filepath.Join(dir, ".tmp-"+base+"*"))
		failed := false
		for _, f := range leftovers {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				failed = true
			}
		}
		if !failed {
			delete(pending.sweeps, dir)
		}
	}
	return errors.Join(errs...)
}
