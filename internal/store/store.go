// Package store persists one club's catalog and round state as JSON files
// in the club's directory. Writes are atomic: serialize to a sibling temp
// file, fsync, then rename over the target, so a reader never observes a
// torn file even across a crash.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/state"
)

// ErrCorruptState marks a JSON decode failure in a persisted file. The
// engine refuses all commands on the affected tenant rather than silently
// resetting; an operator has to intervene.
var ErrCorruptState = errors.New("corrupt state file")

const (
	catalogFile = "club.json"
	stateFile   = "state.json"
)

// ClubStore owns the two files of one club directory. A single mutex
// serializes every read and write; contention is negligible at chat
// message rates and the coarse lock keeps crash-safety reasoning simple.
type ClubStore struct {
	mu  sync.Mutex
	dir string
}

// New returns a store rooted at the club directory. The directory is
// created on first write if missing.
func New(dir string) *ClubStore {
	return &ClubStore{dir: dir}
}

// Dir returns the club directory path.
func (s *ClubStore) Dir() string { return s.dir }

// LoadCatalog reads club.json. A missing catalog is an error: clubs are
// seeded externally and the engine never invents one.
func (s *ClubStore) LoadCatalog() (*catalog.Club, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c catalog.Club
	if err := s.readJSON(catalogFile, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCatalog atomically writes club.json.
func (s *ClubStore) SaveCatalog(c *catalog.Club) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(catalogFile, c)
}

// LoadState reads state.json. A missing file yields a zero round, so a
// freshly seeded club works without a state file.
func (s *ClubStore) LoadState() (*state.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r state.Round
	err := s.readJSON(stateFile, &r)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return state.New(), nil
	case err != nil:
		return nil, err
	}
	r.Normalize()
	return &r, nil
}

// SaveState atomically writes state.json.
func (s *ClubStore) SaveState(r *state.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(stateFile, r)
}

func (s *ClubStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w: %v", name, ErrCorruptState, err)
	}
	return nil
}

// writeJSON performs the atomic temp-file-then-rename dance. The temp file
// lives in the same directory as the target so the rename stays on one
// filesystem.
func (s *ClubStore) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create club dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return err
	}
	cleanup = false
	return nil
}
