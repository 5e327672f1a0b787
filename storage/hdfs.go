package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/colinmarc/hdfs/v2"
	"github.com/gofrs/flock"
)

// HDFSConfig carries the namenode connection settings.
type HDFSConfig struct {
	Address string
	User    string
}

// HDFS stores artifacts in a Hadoop distributed filesystem under
// /<bucket>/<folder>.
type HDFS struct {
	base
	client *hdfs.Client
}

// NewHDFS creates an HDFS backend for the given bucket and folder path.
func NewHDFS(cfg HDFSConfig, dataDir, bucket string, folders []string) (*HDFS, error) {
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: []string{cfg.Address},
		User:      cfg.User,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: hdfs client: %w", err)
	}

	return &HDFS{
		base:   newBase(dataDir, bucket, folders),
		client: client,
	}, nil
}

func (s *HDFS) remoteDir() string {
	return "/" + path.Join(s.bucket, s.folder)
}

// Setup creates the local scratch directory and the remote namespace.
func (s *HDFS) Setup() (Resource, error) {
	if _, err := s.setupLocal(); err != nil {
		return Resource{}, err
	}

	if err := s.client.MkdirAll(s.remoteDir(), 0o755); err != nil {
		return Resource{}, fmt.Errorf("storage: hdfs mkdir %s: %w", s.remoteDir(), err)
	}

	return NewResource(SchemeHDFS, fmt.Sprintf("%s%s/%s/", SchemeHDFS, s.bucket, s.folder))
}

// PutFile stages the file locally and uploads it under the task folder.
func (s *HDFS) PutFile(filePath, rename string) (Resource, error) {
	staged, fileName, err := s.stage(filePath, rename)
	if err != nil {
		return Resource{}, err
	}

	remotePath := path.Join(s.remoteDir(), fileName)

	// CopyToRemote fails on an existing destination; artifacts are
	// content-addressed by task folder, so replace.
	if _, statErr := s.client.Stat(remotePath); statErr == nil {
		if err := s.client.Remove(remotePath); err != nil {
			return Resource{}, fmt.Errorf("storage: hdfs replace %s: %w", remotePath, err)
		}
	}

	if err := s.client.CopyToRemote(staged, remotePath); err != nil {
		return Resource{}, fmt.Errorf("storage: hdfs upload %s: %w", remotePath, err)
	}

	return NewResource(SchemeHDFS, fmt.Sprintf("%s%s/%s/%s", SchemeHDFS, s.bucket, s.folder, fileName))
}

// GetFile downloads the file to its deterministic scratch path under a file
// lock.
func (s *HDFS) GetFile(uri string) (string, error) {
	bucket, object, err := parseRemoteURI(uri, SchemeHDFS)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(s.dataDir, bucket, filepath.FromSlash(object))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dirs for %s: %w", localPath, err)
	}

	lock := flock.New(localPath + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("storage: lock %s: %w", localPath, err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	remotePath := "/" + path.Join(bucket, object)
	if err := s.client.CopyToLocal(remotePath, localPath); err != nil {
		return "", fmt.Errorf("storage: hdfs download %s: %w", remotePath, err)
	}

	return localPath, nil
}

// RemoveLocalDir deletes the scratch directory, keeping omitted files as
// "<name>.old".
func (s *HDFS) RemoveLocalDir(omit ...string) error {
	return s.removeLocalDir(omit)
}

// RemoveRemoteDir is declared but not implemented on any backend.
func (s *HDFS) RemoveRemoteDir(omit ...string) error {
	return nil
}
