package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"FamilyBudget/internal/model"
)

// Persister loads and saves the whole ledger state.
type Persister interface {
	Load() (*model.State, error)
	Save(st *model.State) error
}

// FileStore keeps the state in a single JSON file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the state file. A missing file yields a nil state.
func (f *FileStore) Load() (*model.State, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var st model.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return &st, nil
}

// Save writes the state through a temporary file and a rename, so a crash
// mid-write never leaves a truncated state file behind.
func (f *FileStore) Save(st *model.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
