// Package client holds the byte-stream sources job outputs are served from.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ObjectScheme prefixes output locations held in object storage.
const ObjectScheme = "s3://"

// ErrObjectStorageDisabled is returned for s3:// outputs when no object
// store is configured.
var ErrObjectStorageDisabled = errors.New("object storage not configured")

// FileServer opens the bytes behind a job's output.file.
type FileServer interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalFS opens files from disk. When Root is set, paths are resolved under
// it and cannot climb out of it.
type LocalFS struct {
	Root string
}

func (l LocalFS) Open(_ context.Context, path string) (io.ReadCloser, error) {
	clean := filepath.Clean(path)
	if l.Root != "" {
		// rooting the path first drops any leading ".." before the join
		clean = filepath.Join(l.Root, filepath.Clean(string(filepath.Separator)+path))
	}
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Router sends s3:// locations to Objects and everything else to Local.
type Router struct {
	Local   FileServer
	Objects FileServer
}

func (r Router) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, ObjectScheme) {
		if r.Objects == nil {
			return nil, ErrObjectStorageDisabled
		}
		return r.Objects.Open(ctx, path)
	}
	return r.Local.Open(ctx, path)
}

// ParseObjectURL splits s3://bucket/key. The bucket may be empty
// (s3:///key) to mean the default bucket.
func ParseObjectURL(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, ObjectScheme)
	if !ok {
		return "", "", fmt.Errorf("not an object location: %q", location)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if key == "" {
		return "", "", fmt.Errorf("object location %q has no key", location)
	}
	return bucket, key, nil
}
