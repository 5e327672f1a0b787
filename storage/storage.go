// Package storage provides uniform put/get of workflow artifacts across a
// local filesystem, a MinIO object store, and HDFS. Every backend shares a
// bucket/folder layout mirrored under a process-wide scratch root, and
// locates uploaded artifacts through scheme-tagged Resource URIs.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// URI schemes per backend.
const (
	SchemeLocal = ""
	SchemeMinIO = "minio://"
	SchemeHDFS  = "hdfs://"
)

// Common storage errors.
var (
	// ErrNotValidScheme is returned when a resource URI does not carry the
	// scheme the backend expects.
	ErrNotValidScheme = errors.New("resource scheme is not valid")
)

// Resource is a tagged URI locating an artifact in some backend.
type Resource struct {
	Scheme   string `json:"scheme" bson:"scheme" yaml:"scheme"`
	Resource string `json:"resource" bson:"resource" yaml:"resource"`
}

// NewResource builds a Resource, enforcing that the URI carries its scheme.
func NewResource(scheme, uri string) (Resource, error) {
	if !strings.HasPrefix(uri, scheme) {
		return Resource{}, fmt.Errorf("storage: resource %q does not start with scheme %q", uri, scheme)
	}
	return Resource{Scheme: scheme, Resource: uri}, nil
}

// LocalResource tags a plain filesystem path.
func LocalResource(p string) Resource {
	return Resource{Scheme: SchemeLocal, Resource: p}
}

// Storage is the capability set shared by every backend.
type Storage interface {
	// Setup ensures the local scratch directory exists and, for remote
	// backends, creates the bucket or namespace idempotently. It returns a
	// Resource locating the created area.
	Setup() (Resource, error)

	// PutFile copies the source into the local scratch directory (when not
	// already inside), renames it if requested, uploads it, and returns a
	// Resource identifying the uploaded object.
	PutFile(filePath, rename string) (Resource, error)

	// GetFile downloads the object behind the URI into a deterministic
	// location under the scratch root and returns the local path. Files
	// already on disk are not downloaded again.
	GetFile(uri string) (string, error)

	// RemoveLocalDir deletes the task's local scratch directory. Files named
	// in omit are kept, renamed to "<name>.old"; with no omissions the
	// directory itself is removed.
	RemoveLocalDir(omit ...string) error

	// RemoveRemoteDir is a no-op on every backend: it returns nil and leaves
	// the task's remote directory in place.
	RemoveRemoteDir(omit ...string) error

	// LocalDir returns the task's local scratch directory.
	LocalDir() string

	// Bucket returns the backend bucket name.
	Bucket() string

	// Folder returns the slash-joined folder path inside the bucket.
	Folder() string
}

// base carries the directory layout shared by every backend:
// localDir = dataDir/bucket/folder...
type base struct {
	bucket   string
	folder   string
	dataDir  string
	localDir string
}

func newBase(dataDir, bucket string, folders []string) base {
	folder := path.Join(folders...)
	return base{
		bucket:   bucket,
		folder:   folder,
		dataDir:  dataDir,
		localDir: filepath.Join(dataDir, bucket, filepath.Join(folders...)),
	}
}

func (b base) LocalDir() string { return b.localDir }
func (b base) Bucket() string   { return b.bucket }
func (b base) Folder() string   { return b.folder }

// setupLocal creates the local scratch directory tree.
func (b base) setupLocal() (Resource, error) {
	if err := os.MkdirAll(b.localDir, 0o755); err != nil {
		return Resource{}, fmt.Errorf("storage: create local dir %s: %w", b.localDir, err)
	}
	return LocalResource(b.localDir), nil
}

// stage ensures the source file sits inside localDir under its final name
// and returns the staged path and file name.
func (b base) stage(filePath, rename string) (string, string, error) {
	fileName := filepath.Base(filePath)
	if rename != "" {
		fileName = rename
	}

	staged := filepath.Join(b.localDir, fileName)
	if filePath == staged {
		return staged, fileName, nil
	}

	if strings.HasPrefix(filePath, b.localDir+string(os.PathSeparator)) && rename != "" {
		if err := os.Rename(filePath, staged); err != nil {
			return "", "", fmt.Errorf("storage: rename %s: %w", filePath, err)
		}
		return staged, fileName, nil
	}

	if !strings.HasPrefix(filePath, b.localDir+string(os.PathSeparator)) {
		if err := copyFile(filePath, staged); err != nil {
			return "", "", fmt.Errorf("storage: stage %s: %w", filePath, err)
		}
		return staged, fileName, nil
	}

	return filePath, fileName, nil
}

func (b base) removeLocalDir(omit []string) error {
	entries, err := os.ReadDir(b.localDir)
	if err != nil {
		return fmt.Errorf("storage: read local dir %s: %w", b.localDir, err)
	}

	keep := make(map[string]struct{}, len(omit))
	for _, name := range omit {
		keep[name] = struct{}{}
	}

	for _, entry := range entries {
		entryPath := filepath.Join(b.localDir, entry.Name())

		if _, ok := keep[entry.Name()]; ok {
			if err := os.Rename(entryPath, entryPath+".old"); err != nil {
				return fmt.Errorf("storage: keep %s: %w", entryPath, err)
			}
			continue
		}

		if err := os.RemoveAll(entryPath); err != nil {
			return fmt.Errorf("storage: remove %s: %w", entryPath, err)
		}
	}

	if len(omit) == 0 {
		if err := os.RemoveAll(b.localDir); err != nil {
			return fmt.Errorf("storage: remove local dir %s: %w", b.localDir, err)
		}
	}

	return nil
}

// parseRemoteURI splits "<scheme><bucket>/<path...>" into bucket and object
// path, verifying the scheme first.
func parseRemoteURI(uri, scheme string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("storage: %q: expected scheme %q: %w", uri, scheme, ErrNotValidScheme)
	}

	rest := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("storage: %q is not a valid %q resource", uri, scheme)
	}
	return parts[0], parts[1], nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
