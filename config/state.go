package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v3"
)

// State is the persisted update-check state.
type State struct {
	LastCheck  time.Time `yaml:"last_check,omitempty"`
	NewestSeen time.Time `yaml:"newest_seen,omitempty"`
}

// StateFile keeps State in a YAML file. Every change is written through.
type StateFile struct {
	path string

	mu    sync.Mutex
	state State
}

// OpenState reads the state file at path. A missing file is an empty state.
func OpenState(path string) (*StateFile, error) {
	s := &StateFile{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file location.
func (s *StateFile) Path() string { return s.path }

// State returns a copy of the current state.
func (s *StateFile) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastCheck returns when the last update check started.
func (s *StateFile) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastCheck
}

// RecordCheck stores the start time of an update check.
func (s *StateFile) RecordCheck(t time.Time) error {
	return s.update(func(st *State) { st.LastCheck = t.UTC() })
}

// NewestSeen returns the date of the newest listing already reported.
func (s *StateFile) NewestSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.NewestSeen
}

// RecordSeen stores the date of the newest reported listing.
func (s *StateFile) RecordSeen(t time.Time) error {
	return s.update(func(st *State) { st.NewestSeen = t.UTC() })
}

func (s *StateFile) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)

	data, err := yaml.Marshal(&s.state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file %s: %w", s.path, err)
	}
	return nil
}
