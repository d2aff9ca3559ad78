package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// File persists the whole store as one JSON document shaped
// {user: {conversation: [{role, content}, ...]}}. Every flush rewrites the
// file, so this pays O(total history size) per mutation — adequate for low
// volume and for keeping the history file human-readable.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a file backend rooted at path. The file is created on
// first flush, not here.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads and decodes the history file. A missing file is an empty
// store; anything else unreadable is a storage error.
func (f *File) Load(_ context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, errors.Wrapf(ErrStorage, "read %s: %v", f.path, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrapf(ErrStorage, "decode %s: %v", f.path, err)
	}
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return snapshot, nil
}

// Flush writes the snapshot to a temp file and renames it into place, so a
// crash mid-write never leaves a truncated history file behind.
func (f *File) Flush(_ context.Context, snapshot Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return errors.Wrapf(ErrStorage, "encode history: %v", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".chat_history-*.json")
	if err != nil {
		return errors.Wrapf(ErrStorage, "create temp file in %s: %v", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "write %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "rename %s: %v", f.path, err)
	}
	return nil
}
