package storage

import "log/slog"

// Options selects and configures the storage backend available to the
// process.
type Options struct {
	DataDir string

	MinIOEndpoint  string // empty disables MinIO
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	HDFSAddress string // empty disables HDFS
	HDFSUser    string
}

// Factory builds a Storage for a bucket and folder path.
type Factory func(bucket string, folders ...string) (Storage, error)

// Select returns a Factory for the preferred available backend: MinIO when
// configured, then HDFS, then the local filesystem.
func Select(opts Options, logger *slog.Logger) Factory {
	if opts.MinIOEndpoint != "" {
		return func(bucket string, folders ...string) (Storage, error) {
			return NewMinIO(MinIOConfig{
				Endpoint:  opts.MinIOEndpoint,
				AccessKey: opts.MinIOAccessKey,
				SecretKey: opts.MinIOSecretKey,
				UseSSL:    opts.MinIOUseSSL,
			}, opts.DataDir, bucket, folders, logger)
		}
	}

	if opts.HDFSAddress != "" {
		logger.Debug("MinIO storage not set, falling back to HDFS storage")
		return func(bucket string, folders ...string) (Storage, error) {
			return NewHDFS(HDFSConfig{
				Address: opts.HDFSAddress,
				User:    opts.HDFSUser,
			}, opts.DataDir, bucket, folders)
		}
	}

	logger.Debug("Remote storage not set, falling back to local storage")
	logger.Warn("Local storage does not support distributed execution")

	return func(bucket string, folders ...string) (Storage, error) {
		return NewLocal(opts.DataDir, bucket, folders...), nil
	}
}
