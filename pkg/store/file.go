package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const DefaultStorageFileName = ".intentflow-state.json"

// FileStore persists entries in a single JSON file in the user's home
// directory (or a configured path), written atomically.
type FileStore struct {
	filePath string
	mu       sync.Mutex
	entries  map[string]json.RawMessage
}

type fileState struct {
	Entries map[string]json.RawMessage `json:"entries"`
}

// NewFileStore creates a file-backed store, loading any existing state
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	s := &FileStore{
		filePath: filePath,
		entries:  make(map[string]json.RawMessage),
	}

	if err := s.load(); err != nil {
		// Missing file is fine, it is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	s.entries = state.Entries
	if s.entries == nil {
		s.entries = make(map[string]json.RawMessage)
	}

	return nil
}

// save must be called with the lock held
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileState{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first, then rename for an atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get returns the stored value for a key
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set writes a value for a key and flushes to disk
func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = append(json.RawMessage(nil), value...)
	return s.save()
}

// Clear removes a key and flushes to disk
func (s *FileStore) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.save()
}

// FilePath returns the backing file path
func (s *FileStore) FilePath() string {
	return s.filePath
}
