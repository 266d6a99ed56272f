// internal/storage/store.go
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/aws/smithy-go"
)

// ObjectStore is the object storage surface both functions need.
type ObjectStore interface {
	// Download writes the object to w and returns the number of bytes written.
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)

	// Upload stores the content of r under bucket/key.
	Upload(ctx context.Context, bucket, key string, r io.Reader) error

	// Get reads the whole object into memory.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// List returns every object under prefix, following pagination.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ProviderError extracts the provider error code and message from err so they
// can be reported to operators. Local filesystem misses map to NoSuchKey.
func ProviderError(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode(), apiErr.ErrorMessage()
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "NoSuchKey", "The specified key does not exist."
	}
	if errors.Is(err, fs.ErrPermission) {
		return "AccessDenied", "Access Denied"
	}
	return "Unknown", err.Error()
}
