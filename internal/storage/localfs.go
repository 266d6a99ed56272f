// internal/storage/localfs.go
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFS implements ObjectStore on the local filesystem. Each bucket is a
// directory under the base path and keys map to relative file paths.
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a new LocalFS storage
func NewLocalFS(basePath string) (*LocalFS, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) fullPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	root := filepath.Join(l.basePath, bucket)
	full := filepath.Join(root, filepath.FromSlash(key))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes bucket %q", key, bucket)
	}
	return full, nil
}

func (l *LocalFS) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(io.NewOffsetWriter(w, 0), f)
}

func (l *LocalFS) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *LocalFS) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

// List walks the bucket directory and returns keys in lexical order, matching
// S3 listing order.
func (l *LocalFS) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	root, err := l.fullPath(bucket, "")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
