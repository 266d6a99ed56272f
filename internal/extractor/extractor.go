// Package extractor unpacks a zip archive held in object storage back into the
// store, one member at a time, within the invocation's time budget.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/s3zip/internal/core"
	"github.com/newthinker/s3zip/internal/metrics"
	"github.com/newthinker/s3zip/internal/response"
	"github.com/newthinker/s3zip/internal/storage"
	"github.com/newthinker/s3zip/internal/ziparchive"
	"go.uber.org/zap"
)

const handlerName = "extract"

// Result messages.
const (
	MsgComplete      = "Successfully extracted and uploaded all files"
	MsgDeadline      = "Partial extraction completed due to execution time limit"
	MsgFailedMembers = "Extraction completed with failed files"
	MsgFailed        = "Extraction failed"
)

// Job describes one extraction.
type Job struct {
	Bucket            string
	Key               string
	Password          string
	DestinationBucket string // defaults to Bucket
	DestinationPrefix string // defaults to the directory of Key
}

// Validate checks the required fields.
func (j Job) Validate() error {
	if j.Bucket == "" {
		return core.WithMessage(core.ErrConfigMissing, "source bucket is required", nil)
	}
	if j.Key == "" {
		return core.WithMessage(core.ErrConfigMissing, "source key is required", nil)
	}
	return nil
}

func (j Job) destinationBucket() string {
	if j.DestinationBucket != "" {
		return j.DestinationBucket
	}
	return j.Bucket
}

func (j Job) destinationPrefix() string {
	if j.DestinationPrefix != "" {
		return j.DestinationPrefix
	}
	return SourcePrefix(j.Key)
}

// Stats counts what happened to the members of one archive.
type Stats struct {
	Total        int  `json:"total_files"`
	Extracted    int  `json:"extracted_files"`
	Uploaded     int  `json:"uploaded_files"`
	Failed       int  `json:"failed_files"`
	Skipped      int  `json:"skipped_files"`
	StoppedEarly bool `json:"-"`
}

// Body is the JSON body of every extraction result.
type Body struct {
	Message string `json:"message"`
	Stats
	ExecutionTime float64               `json:"execution_time_seconds"`
	Error         *response.ErrorDetail `json:"error,omitempty"`
}

// Extractor runs extraction jobs against an object store.
type Extractor struct {
	Store   storage.ObjectStore
	Log     *zap.Logger
	Metrics *metrics.Registry // optional

	// Now is the clock; tests replace it.
	Now func() time.Time

	SafetyMargin  time.Duration
	DefaultBudget time.Duration
	TempDir       string
	ProgressEvery int
}

// New creates an Extractor with the default timing settings.
func New(store storage.ObjectStore, logger *zap.Logger, reg *metrics.Registry) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		Store:         store,
		Log:           logger,
		Metrics:       reg,
		Now:           time.Now,
		SafetyMargin:  60 * time.Second,
		DefaultBudget: 840 * time.Second,
		TempDir:       os.TempDir(),
		ProgressEvery: 100,
	}
}

// Run executes job and always returns a result; failures are reported through
// the status code and the error detail of the body.
//
// An encrypted archive has its first encrypted member decrypted once up front
// to check the passphrase, and again in the member loop. For a large first
// member that read is time the per-member deadline check does not see.
func (e *Extractor) Run(ctx context.Context, job Job) (res response.Result) {
	now := e.clock()
	start := now()
	budget := NewBudget(ctx, start, e.DefaultBudget, e.SafetyMargin)
	stats := &Stats{}

	log := e.logger().With(
		zap.String("bucket", job.Bucket),
		zap.String("key", job.Key),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("extraction panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = e.result(500, MsgFailed, stats, start,
				core.WrapError(core.ErrUnexpected, fmt.Errorf("panic: %v", r)))
		}
		e.recordRun(res.StatusCode, now().Sub(start))
	}()

	log.Info("processing archive",
		zap.Time("deadline", budget.Deadline),
		zap.Duration("budget", budget.Remaining(start)),
	)

	if err := job.Validate(); err != nil {
		return e.result(400, MsgFailed, stats, start, err)
	}
	if !strings.HasSuffix(strings.ToLower(job.Key), ".zip") {
		log.Error("not a zip file")
		return e.result(400, MsgFailed, stats, start,
			core.WithMessage(core.ErrNotArchive, "not a zip file, no action taken", nil))
	}

	runDir, err := os.MkdirTemp(e.TempDir, "unzip-"+uuid.NewString()+"-")
	if err != nil {
		return e.result(500, MsgFailed, stats, start, core.WrapError(core.ErrUnexpected, err))
	}
	defer os.RemoveAll(runDir)

	archivePath, err := e.download(ctx, log, job, runDir)
	if err != nil {
		return e.result(500, MsgFailed, stats, start, err)
	}

	zr, err := ziparchive.Open(archivePath)
	if err != nil {
		log.Error("invalid zip file", zap.Error(err))
		return e.result(400, MsgFailed, stats, start, err)
	}
	defer zr.Close()

	members := zr.Members()
	stats.Total = len(members)
	if e.Metrics != nil {
		e.Metrics.SetArchiveEntries(stats.Total)
	}
	log.Info("found members", zap.Int("total", stats.Total), zap.Bool("encrypted", zr.Encrypted()))

	// Verification decrypts a whole member, so it only starts inside the budget.
	if budget.Exceeded(now()) {
		log.Warn("time limit reached before extraction started", zap.Int("total", stats.Total))
		stats.StoppedEarly = true
		if e.Metrics != nil {
			e.Metrics.RecordDeadlineStop()
		}
		return e.result(206, MsgDeadline, stats, start, nil)
	}

	if err := zr.VerifyPassphrase(job.Password); err != nil {
		if errors.Is(err, core.ErrBadPassphrase) {
			log.Error("incorrect password for zip file", zap.Error(err))
			return e.result(401, MsgFailed, stats, start, err)
		}
		log.Error("invalid zip file", zap.Error(err))
		return e.result(400, MsgFailed, stats, start, err)
	}

	e.extractAll(ctx, log, zr, job, runDir, budget, stats)

	elapsed := now().Sub(start)
	log.Info("operation statistics",
		zap.Int("total", stats.Total),
		zap.Int("extracted", stats.Extracted),
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", elapsed),
	)

	switch {
	case stats.StoppedEarly:
		log.Warn("not all files were processed; split the archive or raise the function timeout")
		return e.result(206, MsgDeadline, stats, start, nil)
	case stats.Failed > 0:
		return e.result(206, MsgFailedMembers, stats, start, nil)
	default:
		return e.result(200, MsgComplete, stats, start, nil)
	}
}

func (e *Extractor) download(ctx context.Context, log *zap.Logger, job Job, dir string) (string, error) {
	archivePath := filepath.Join(dir, path.Base(job.Key))
	f, err := os.Create(archivePath)
	if err != nil {
		return "", core.WrapError(core.ErrUnexpected, err)
	}

	began := e.clock()()
	n, err := e.Store.Download(ctx, job.Bucket, job.Key, f)
	if err != nil {
		f.Close()
		code, msg := storage.ProviderError(err)
		log.Error("failed to download archive",
			zap.String("provider_code", code),
			zap.String("provider_message", msg),
		)
		return "", core.WrapError(core.ErrDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		log.Error("failed to write archive to disk", zap.Error(err))
		return "", core.WrapError(core.ErrDownloadFailed, err)
	}
	if e.Metrics != nil {
		e.Metrics.AddDownloaded(n)
	}

	log.Info("downloaded archive",
		zap.Int64("bytes", n),
		zap.Duration("took", e.clock()().Sub(began)),
	)
	return archivePath, nil
}

func (e *Extractor) extractAll(ctx context.Context, log *zap.Logger, zr *ziparchive.Reader, job Job, dir string, budget Budget, stats *Stats) {
	now := e.clock()
	members := zr.Members()
	destBucket := job.destinationBucket()
	prefix := job.destinationPrefix()
	every := e.ProgressEvery
	if every < 1 {
		every = 100
	}

	for i, m := range members {
		if budget.Exceeded(now()) {
			log.Warn("approaching time limit, stopping extraction",
				zap.Int("processed", i),
				zap.Int("total", stats.Total),
			)
			stats.StoppedEarly = true
			if e.Metrics != nil {
				e.Metrics.RecordDeadlineStop()
			}
			return
		}

		if m.Dir {
			stats.Skipped++
			e.recordMember("skipped")
			continue
		}

		destKey := DestinationKey(prefix, m.Name)
		if err := e.transfer(ctx, zr, m, job.Password, dir, destBucket, destKey); err != nil {
			stats.Failed++
			e.recordMember("failed")
			log.Error("failed to process member",
				zap.String("member", m.Name),
				zap.String("dest_key", destKey),
				zap.Error(err),
			)
		} else {
			stats.Extracted++
			stats.Uploaded++
			e.recordMember("uploaded")
		}

		if i%every == 0 || i == len(members)-1 {
			log.Info("progress",
				zap.Int("processed", i+1),
				zap.Int("total", stats.Total),
				zap.Float64("percent", math.Round(float64(i+1)/float64(stats.Total)*1000)/10),
			)
		}
	}
}

// transfer spools one member to disk and uploads it. The spool file is removed
// before returning, so at most one member is on disk at a time.
func (e *Extractor) transfer(ctx context.Context, zr *ziparchive.Reader, m ziparchive.Member, password, dir, bucket, key string) error {
	spool, err := os.CreateTemp(dir, "member-*")
	if err != nil {
		return core.WrapError(core.ErrMemberFailed, err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	n, err := zr.ExtractTo(m, password, spool)
	if err != nil {
		return err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return core.WrapError(core.ErrMemberFailed, err)
	}

	if err := e.Store.Upload(ctx, bucket, key, spool); err != nil {
		return core.WrapError(core.ErrUploadFailed, err)
	}
	if e.Metrics != nil {
		e.Metrics.AddUploaded(n)
	}
	return nil
}

func (e *Extractor) result(status int, message string, stats *Stats, start time.Time, err error) response.Result {
	elapsed := e.clock()().Sub(start).Seconds()
	return response.JSON(status, Body{
		Message:       message,
		Stats:         *stats,
		ExecutionTime: math.Round(elapsed*100) / 100,
		Error:         response.Detail(err),
	})
}

func (e *Extractor) recordRun(status int, elapsed time.Duration) {
	if e.Metrics != nil {
		e.Metrics.RecordRun(handlerName, status, elapsed.Seconds())
	}
}

func (e *Extractor) recordMember(outcome string) {
	if e.Metrics != nil {
		e.Metrics.RecordMember(handlerName, outcome)
	}
}

func (e *Extractor) clock() func() time.Time {
	if e.Now != nil {
		return e.Now
	}
	return time.Now
}

func (e *Extractor) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}
