package entry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store persists config entries to a YAML file
type Store struct {
	path string
}

type storeFile struct {
	Entries []ConfigEntry `yaml:"entries"`
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load reads all entries. A missing file yields no entries.
func (s *Store) Load() ([]ConfigEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entries file: %w", err)
	}

	var file storeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entries file: %w", err)
	}

	for i := range file.Entries {
		file.Entries[i].State = StateNotLoaded
	}
	return file.Entries, nil
}

// Save replaces the file contents with entries. The file is written next to
// its final location and renamed into place.
func (s *Store) Save(entries []ConfigEntry) error {
	data, err := yaml.Marshal(storeFile{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create entries directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".entries-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary entries file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write entries file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close entries file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set entries file mode: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename entries file into place: %w", err)
	}
	return nil
}
