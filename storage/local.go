package storage

import (
	"fmt"
	"io/fs"
	"os"
)

// Local keeps artifacts on the worker's filesystem only. It does not support
// distributed execution: a task scheduled on another worker cannot see files
// put here.
type Local struct {
	base
}

// NewLocal creates a local backend rooted at dataDir/bucket/folders.
func NewLocal(dataDir, bucket string, folders ...string) *Local {
	return &Local{base: newBase(dataDir, bucket, folders)}
}

// Setup ensures the local scratch directory exists.
func (s *Local) Setup() (Resource, error) {
	return s.setupLocal()
}

// PutFile stages the file into the scratch directory and returns its path.
func (s *Local) PutFile(filePath, rename string) (Resource, error) {
	staged, _, err := s.stage(filePath, rename)
	if err != nil {
		return Resource{}, err
	}
	return LocalResource(staged), nil
}

// GetFile returns the path unchanged when the file exists on disk.
func (s *Local) GetFile(uri string) (string, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return "", fmt.Errorf("storage: local file %s: %w", uri, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("storage: local file %s: %w", uri, fs.ErrInvalid)
	}
	return uri, nil
}

// RemoveLocalDir deletes the scratch directory, keeping omitted files as
// "<name>.old".
func (s *Local) RemoveLocalDir(omit ...string) error {
	return s.removeLocalDir(omit)
}

// RemoveRemoteDir is a no-op: there is no remote side.
func (s *Local) RemoveRemoteDir(omit ...string) error {
	return nil
}
