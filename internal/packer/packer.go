// Package packer bundles every object of a bucket into a single zip archive.
//
// The archive is built in memory, so the total size of the source objects is
// bounded by the function's memory allocation.
package packer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/s3zip/internal/core"
	"github.com/newthinker/s3zip/internal/metrics"
	"github.com/newthinker/s3zip/internal/response"
	"github.com/newthinker/s3zip/internal/storage"
	"github.com/newthinker/s3zip/internal/ziparchive"
	"go.uber.org/zap"
)

const handlerName = "pack"

// DefaultDestinationKey names the archive when the job does not.
const DefaultDestinationKey = "all_files.zip"

// Job describes one packing run.
type Job struct {
	SourceBucket      string
	SourcePrefix      string
	DestinationBucket string
	DestinationKey    string
	Password          string
}

// Validate checks the required fields.
func (j Job) Validate() error {
	if j.SourceBucket == "" {
		return core.WithMessage(core.ErrConfigMissing, "source bucket is required", nil)
	}
	if j.DestinationBucket == "" {
		return core.WithMessage(core.ErrConfigMissing, "destination bucket is required", nil)
	}
	return nil
}

// Body is the JSON body of a packing result.
type Body struct {
	Message           string                `json:"message"`
	DestinationBucket string                `json:"destination_bucket,omitempty"`
	DestinationKey    string                `json:"destination_key,omitempty"`
	FileCount         int                   `json:"file_count"`
	ArchiveBytes      int                   `json:"archive_bytes"`
	Error             *response.ErrorDetail `json:"error,omitempty"`
}

// Packer runs packing jobs against an object store.
type Packer struct {
	store   storage.ObjectStore
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a Packer. reg may be nil.
func New(store storage.ObjectStore, logger *zap.Logger, reg *metrics.Registry) *Packer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packer{store: store, logger: logger, metrics: reg}
}

// Run executes job and reports the outcome through the returned result.
func (p *Packer) Run(ctx context.Context, job Job) response.Result {
	start := time.Now()
	res := p.run(ctx, job)
	if p.metrics != nil {
		p.metrics.RecordRun(handlerName, res.StatusCode, time.Since(start).Seconds())
	}
	return res
}

func (p *Packer) run(ctx context.Context, job Job) response.Result {
	if err := job.Validate(); err != nil {
		return fail(400, err)
	}
	if job.DestinationKey == "" {
		job.DestinationKey = DefaultDestinationKey
	}

	log := p.logger.With(
		zap.String("source_bucket", job.SourceBucket),
		zap.String("destination_bucket", job.DestinationBucket),
		zap.String("destination_key", job.DestinationKey),
	)

	objects, err := p.store.List(ctx, job.SourceBucket, job.SourcePrefix)
	if err != nil {
		log.Error("failed to list source bucket", zap.Error(err))
		return fail(500, core.WrapError(core.ErrListFailed, err))
	}
	if len(objects) == 0 {
		log.Info("no objects found in the source bucket")
	}

	var buf bytes.Buffer
	zw := ziparchive.NewWriter(&buf, job.Password)

	for _, obj := range objects {
		// A previous archive in the same bucket is not packed into the next one.
		if job.SourceBucket == job.DestinationBucket && obj.Key == job.DestinationKey {
			continue
		}
		if strings.HasSuffix(obj.Key, "/") {
			if err := zw.AddDir(obj.Key); err != nil {
				return fail(500, core.WrapError(core.ErrArchiveWrite, err))
			}
			continue
		}

		data, err := p.store.Get(ctx, job.SourceBucket, obj.Key)
		if err != nil {
			log.Error("failed to fetch object", zap.String("key", obj.Key), zap.Error(err))
			return fail(500, core.WithMessage(core.ErrFetchFailed,
				fmt.Sprintf("error fetching object %s", obj.Key), err))
		}
		if p.metrics != nil {
			p.metrics.AddDownloaded(int64(len(data)))
		}

		if _, err := zw.Add(obj.Key, bytes.NewReader(data)); err != nil {
			return fail(500, core.WrapError(core.ErrArchiveWrite, err))
		}
		if p.metrics != nil {
			p.metrics.RecordMember(handlerName, "packed")
		}
	}

	if err := zw.Close(); err != nil {
		return fail(500, core.WrapError(core.ErrArchiveWrite, err))
	}

	size := buf.Len()
	if p.metrics != nil {
		p.metrics.SetArchiveEntries(zw.Files())
	}
	if err := p.store.Upload(ctx, job.DestinationBucket, job.DestinationKey, &buf); err != nil {
		log.Error("failed to upload archive", zap.Error(err))
		return fail(500, core.WrapError(core.ErrUploadFailed, err))
	}
	if p.metrics != nil {
		p.metrics.AddUploaded(int64(size))
	}

	log.Info("archive uploaded", zap.Int("files", zw.Files()), zap.Int("bytes", size))

	return response.JSON(200, Body{
		Message: fmt.Sprintf("Created %s with all files from %s",
			job.DestinationKey, job.SourceBucket),
		DestinationBucket: job.DestinationBucket,
		DestinationKey:    job.DestinationKey,
		FileCount:         zw.Files(),
		ArchiveBytes:      size,
	})
}

func fail(status int, err error) response.Result {
	return response.JSON(status, Body{
		Message: "Packing failed",
		Error:   response.Detail(err),
	})
}
