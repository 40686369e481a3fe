package preferences

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in a single YAML file. Used for local runs.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Save(_ context.Context, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(prefs)
}

func (s *FileStore) AddMaskedApp(_ context.Context, source string) error {
	return s.modify(func(p *Preferences) bool { return p.AddMaskedApp(source) })
}

func (s *FileStore) RemoveMaskedApp(_ context.Context, source string) error {
	return s.modify(func(p *Preferences) bool { return p.RemoveMaskedApp(source) })
}

func (s *FileStore) modify(fn func(*Preferences) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if errors.Is(err, ErrNotFound) {
		prefs = Defaults()
	} else if err != nil {
		return err
	}
	if !fn(&prefs) {
		return nil
	}
	return s.save(prefs)
}

func (s *FileStore) load() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("failed to read preferences file: %w", err)
	}

	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences file %s: %w", s.path, err)
	}
	prefs.Normalize()
	return prefs, nil
}

// save writes to a temp file in the same directory and renames it over the
// target so readers never see a partial document.
func (s *FileStore) save(prefs Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
