package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig carries the connection settings of the object store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinIO stores artifacts in a MinIO (S3-compatible) object store, mirroring
// them under the local scratch root for task-side access.
type MinIO struct {
	base
	client *minio.Client
	logger *slog.Logger
}

// NewMinIO creates a MinIO backend for the given bucket and folder path.
func NewMinIO(cfg MinIOConfig, dataDir, bucket string, folders []string, logger *slog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}

	return &MinIO{
		base:   newBase(dataDir, bucket, folders),
		client: client,
		logger: logger,
	}, nil
}

// Setup creates the local scratch directory and the remote bucket. Buckets
// already owned are not an error. Objects under the bucket are granted
// public read.
// TODO restrict the bucket policy to the workflow author.
func (s *MinIO) Setup() (Resource, error) {
	if _, err := s.setupLocal(); err != nil {
		return Resource{}, err
	}

	ctx := context.Background()

	err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
			return Resource{}, fmt.Errorf("storage: make bucket %s: %w", s.bucket, err)
		}
	} else {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, s.readOnlyPolicy()); err != nil {
			return Resource{}, fmt.Errorf("storage: set bucket policy %s: %w", s.bucket, err)
		}
	}

	return NewResource(SchemeMinIO, fmt.Sprintf("%s%s/", SchemeMinIO, s.bucket))
}

func (s *MinIO) readOnlyPolicy() string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Sid":       "",
				"Effect":    "Allow",
				"Principal": map[string]any{"AWS": "*"},
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", s.bucket),
			},
		},
	}
	raw, _ := json.Marshal(policy)
	return string(raw)
}

// PutFile stages the file locally and uploads it under the task folder.
func (s *MinIO) PutFile(filePath, rename string) (Resource, error) {
	staged, fileName, err := s.stage(filePath, rename)
	if err != nil {
		return Resource{}, err
	}

	objectName := path.Join(s.folder, fileName)

	_, err = s.client.FPutObject(context.Background(), s.bucket, objectName, staged, minio.PutObjectOptions{})
	if err != nil {
		s.logger.Error("Could not put object", "bucket", s.bucket, "object", objectName, "error", err)
		return Resource{}, fmt.Errorf("storage: put object %s: %w", objectName, err)
	}

	return NewResource(SchemeMinIO, fmt.Sprintf("%s%s/%s", SchemeMinIO, s.bucket, objectName))
}

// GetFile downloads the object to its deterministic scratch path. A file
// lock on "<path>.lock" keeps concurrent workers from downloading the same
// object twice.
func (s *MinIO) GetFile(uri string) (string, error) {
	bucket, object, err := parseRemoteURI(uri, SchemeMinIO)
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

	err = s.client.FGetObject(context.Background(), bucket, object, localPath, minio.GetObjectOptions{})
	if err != nil {
		s.logger.Error("Could not get object", "bucket", bucket, "object", object, "error", err)
		return "", fmt.Errorf("storage: get object %s: %w", object, err)
	}

	return localPath, nil
}

// RemoveLocalDir deletes the scratch directory, keeping omitted files as
// "<name>.old".
func (s *MinIO) RemoveLocalDir(omit ...string) error {
	return s.removeLocalDir(omit)
}

// RemoveRemoteDir is declared but not implemented on any backend.
func (s *MinIO) RemoveRemoteDir(omit ...string) error {
	return nil
}
