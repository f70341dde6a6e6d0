package fuzz

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

// maxCreateAttempts bounds the suffix search of Scope.Create.
const maxCreateAttempts = 1 << 20

// Scope owns every file one iteration creates. Release deletes them unless
// the iteration asked for them to be preserved.
type Scope struct {
	mu        sync.Mutex
	dir       string
	prefix    string
	next      int
	files     []string
	preserved bool
}

// NewScope returns a scope creating files named <prefix>_<N><ext> in dir.
func NewScope(dir, prefix string) *Scope {
	if dir == "" {
		dir = "."
	}
	return &Scope{dir: dir, prefix: prefix, next: 1}
}

// Create makes a new empty file with a name no other process holds. Other
// campaigns may share dir; a taken name moves on to the next suffix.
func (s *Scope) Create(ext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		name := filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", s.prefix, s.next, ext))
		s.next++
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		s.files = append(s.files, name)
		return name, nil
	}
	return "", fmt.Errorf("no free file name for %s_N%s in %s", s.prefix, ext, s.dir)
}

// Remove deletes one file early and forgets it.
func (s *Scope) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f == path {
			s.files = append(s.files[:i], s.files[i+1:]...)
			break
		}
	}
	return removeIfExists(path)
}

// Files lists the files the scope still owns.
func (s *Scope) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Preserve keeps every file past Release, for triage.
func (s *Scope) Preserve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preserved = true
}

// Release deletes the owned files unless preserved. Every file is tried;
// the failures are combined.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preserved {
		return nil
	}
	var err error
	for _, f := range s.files {
		err = multierr.Append(err, removeIfExists(f))
	}
	s.files = nil
	return err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
