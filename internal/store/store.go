// internal/store/store.go
// File-backed per-user key/value records.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrCorrupted = errors.New("corrupted data file: root must be an object")
)

// Record holds the values stored for one user.
type Record map[string]any

// Store keeps every user's record in a single JSON document. Each write
// rewrites the whole file.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

// Set validates and stores value under key in the record of uid.
func (s *Store) Set(uid, key string, value any) error {
	if err := ValidateUID(uid); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	record, ok := data[uid].(map[string]any)
	if !ok {
		record = make(map[string]any)
	}
	record[key] = value
	data[uid] = record
	return s.save(data)
}

// Get returns the record of uid or ErrNotFound.
func (s *Store) Get(uid string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, ok := data[uid]
	if !ok {
		return nil, ErrNotFound
	}
	record, ok := raw.(map[string]any)
	if !ok {
		return Record{}, nil
	}
	return Record(record), nil
}

// All returns every record keyed by uid.
func (s *Store) All() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	records := make(map[string]Record, len(data))
	for uid, raw := range data {
		record, _ := raw.(map[string]any)
		records[uid] = Record(record)
	}
	return records, nil
}

func (s *Store) load() (map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	data, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrCorrupted
	}
	return data, nil
}

func (s *Store) save(data map[string]any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
