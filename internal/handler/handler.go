// Package handler adapts the extractor and packer to function invocations:
// it decodes the event, overlays it on the configured defaults and runs the
// job with a request scoped logger.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/newthinker/s3zip/internal/config"
	"github.com/newthinker/s3zip/internal/core"
	"github.com/newthinker/s3zip/internal/extractor"
	"github.com/newthinker/s3zip/internal/metrics"
	"github.com/newthinker/s3zip/internal/packer"
	"github.com/newthinker/s3zip/internal/response"
	"github.com/newthinker/s3zip/internal/storage"
	"go.uber.org/zap"
)

// Func is the signature lambda.Start accepts.
type Func func(ctx context.Context, payload json.RawMessage) (response.Result, error)

// Deps are the shared dependencies of both handlers.
type Deps struct {
	Config  *config.Config
	Store   storage.ObjectStore
	Logger  *zap.Logger
	Metrics *metrics.Registry // optional
}

// ExtractEvent is the extractor payload. A standard S3 notification is
// accepted as well; its first record names the archive.
type ExtractEvent struct {
	Bucket            string `json:"bucket"`
	Key               string `json:"key"`
	Password          string `json:"password"`
	DestinationBucket string `json:"destination_bucket"`
	DestinationPrefix string `json:"destination_prefix"`

	Records []events.S3EventRecord `json:"Records"`
}

// PackEvent is the packer payload.
type PackEvent struct {
	SourceBucket      string `json:"source_bucket"`
	SourcePrefix      string `json:"source_prefix"`
	DestinationBucket string `json:"destination_bucket"`
	DestinationKey    string `json:"destination_key"`
	Password          string `json:"password"`
}

// Extract returns the unzip function handler.
func Extract(d Deps) Func {
	cfg := d.Config.Extract
	return func(ctx context.Context, payload json.RawMessage) (response.Result, error) {
		log := requestLogger(ctx, d.logger()).With(zap.String("handler", "extract"))

		var ev ExtractEvent
		if err := decode(payload, &ev); err != nil {
			log.Warn("invalid event", zap.Error(err))
			return invalidEvent(err), nil
		}

		job := extractor.Job{
			Bucket:            first(ev.Bucket, cfg.Bucket),
			Key:               first(ev.Key, cfg.Key),
			Password:          first(ev.Password, cfg.Password),
			DestinationBucket: first(ev.DestinationBucket, cfg.DestinationBucket),
			DestinationPrefix: first(ev.DestinationPrefix, cfg.DestinationPrefix),
		}
		if len(ev.Records) > 0 {
			s3 := ev.Records[0].S3
			job.Bucket = s3.Bucket.Name
			job.Key = first(s3.Object.URLDecodedKey, s3.Object.Key)
		}

		x := extractor.New(d.Store, log, d.Metrics)
		x.SafetyMargin = cfg.SafetyMargin
		x.DefaultBudget = cfg.DefaultBudget
		x.TempDir = cfg.TempDir
		x.ProgressEvery = cfg.ProgressEvery

		res := x.Run(ctx, job)
		d.push(ctx, log)
		return res, nil
	}
}

// Pack returns the zip function handler.
func Pack(d Deps) Func {
	cfg := d.Config.Pack
	return func(ctx context.Context, payload json.RawMessage) (response.Result, error) {
		log := requestLogger(ctx, d.logger()).With(zap.String("handler", "pack"))

		var ev PackEvent
		if err := decode(payload, &ev); err != nil {
			log.Warn("invalid event", zap.Error(err))
			return invalidEvent(err), nil
		}

		job := packer.Job{
			SourceBucket:      first(ev.SourceBucket, cfg.SourceBucket),
			SourcePrefix:      first(ev.SourcePrefix, cfg.SourcePrefix),
			DestinationBucket: first(ev.DestinationBucket, cfg.DestinationBucket),
			DestinationKey:    first(ev.DestinationKey, cfg.DestinationKey),
			Password:          first(ev.Password, cfg.Password),
		}

		res := packer.New(d.Store, log, d.Metrics).Run(ctx, job)
		d.push(ctx, log)
		return res, nil
	}
}

// RequestID returns the invocation's request id, or a fresh UUID outside the
// function runtime.
func RequestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}

func requestLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	return base.With(zap.String("run_id", RequestID(ctx)))
}

// decode treats an empty or null payload as an empty event.
func decode(payload json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

func invalidEvent(err error) response.Result {
	return response.JSON(400, struct {
		Message string                `json:"message"`
		Error   *response.ErrorDetail `json:"error"`
	}{
		Message: "Invalid event",
		Error:   response.Detail(core.WrapError(core.ErrInvalidEvent, err)),
	})
}

func (d Deps) push(ctx context.Context, log *zap.Logger) {
	if d.Metrics == nil || d.Config.Metrics.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Metrics.Push(pushCtx, d.Config.Metrics.PushgatewayURL, d.Config.Metrics.Job); err != nil {
		log.Warn("failed to push metrics", zap.Error(err))
	}
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
