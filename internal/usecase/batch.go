package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/example/damage-estimator/internal/classifier"
	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
	"github.com/example/damage-estimator/internal/upload"
)

// MaxImages is the number of images processed per request. Extra images are dropped.
const MaxImages = 6

// ImageProcessingFailed is the client facing message for resource failures.
const ImageProcessingFailed = "Image processing failed."

// UploadStore persists raw uploads so they can be annotated later.
type UploadStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
}

// HealthChecker reports whether the record store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Observer receives per-image measurements.
type Observer interface {
	ObserveOutcome(kind, reason string)
	ObserveCost(severity string, cost int)
	ObserveClassification(elapsed time.Duration, err error)
	ObserveBatch(images int)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(string, string)              {}
func (nopObserver) ObserveCost(string, int)                    {}
func (nopObserver) ObserveClassification(time.Duration, error) {}
func (nopObserver) ObserveBatch(int)                           {}

// Image is one uploaded file. Open is called at most once.
type Image struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// BytesImage adapts an in-memory file to an Image.
func BytesImage(filename string, data []byte) Image {
	return Image{
		Filename: filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// BatchRequest is one prediction request.
type BatchRequest struct {
	RequestID string
	Images    []Image
	Vehicle   estimate.Vehicle
	OwnerID   string
}

// Outcome is the result for one image: either Record or Err is set.
type Outcome struct {
	Filename string
	Record   *estimate.Record
	Err      error
}

// Succeeded reports whether a record was produced.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Record != nil
}

// Kind classifies the failure. Empty on success.
func (o Outcome) Kind() estimate.Kind {
	return estimate.KindOf(o.Err)
}

// Message is the text shown to the client for a failed image.
func (o Outcome) Message() string {
	var rejection *estimate.Rejection
	if errors.As(o.Err, &rejection) {
		return rejection.Reason.Message()
	}
	return ImageProcessingFailed
}

// Reason is the metric label for the outcome.
func (o Outcome) Reason() string {
	var rejection *estimate.Rejection
	if errors.As(o.Err, &rejection) {
		return string(rejection.Reason)
	}
	return logging.OperationOf(o.Err)
}

// BatchOptions bounds how a batch is executed.
type BatchOptions struct {
	MaxImages             int
	Workers               int
	ClassifierConcurrency int
	ClassifyTimeout       time.Duration
	MaxImageBytes         int64
}

// DefaultBatchOptions processes images one at a time.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxImages:             MaxImages,
		Workers:               1,
		ClassifierConcurrency: 1,
		ClassifyTimeout:       30 * time.Second,
		MaxImageBytes:         16 << 20,
	}
}

// Batch applies the pipeline to every image of a request and isolates
// per-image failures.
type Batch struct {
	pipeline   *Pipeline
	classifier classifier.Client
	uploads    UploadStore
	health     HealthChecker
	observer   Observer
	logger     *zap.Logger
	opts       BatchOptions
	sem        *semaphore.Weighted
}

// NewBatch builds a coordinator. health and observer may be nil.
func NewBatch(pipeline *Pipeline, client classifier.Client, uploads UploadStore, health HealthChecker, observer Observer, logger *zap.Logger, opts BatchOptions) *Batch {
	defaults := DefaultBatchOptions()
	if opts.MaxImages <= 0 || opts.MaxImages > MaxImages {
		opts.MaxImages = defaults.MaxImages
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.ClassifierConcurrency <= 0 {
		opts.ClassifierConcurrency = defaults.ClassifierConcurrency
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = defaults.ClassifyTimeout
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = defaults.MaxImageBytes
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Batch{
		pipeline:   pipeline,
		classifier: client,
		uploads:    uploads,
		health:     health,
		observer:   observer,
		logger:     logger.Named("batch"),
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.ClassifierConcurrency)),
	}
}

// Run processes up to MaxImages images and returns one outcome per kept image
// in input order. The error is reserved for request level failures.
func (b *Batch) Run(ctx context.Context, req BatchRequest) ([]Outcome, error) {
	if len(req.Images) == 0 {
		return nil, estimate.WrapError(estimate.ErrMalformedInput, "batch.run", errors.New("no images in request"))
	}

	if b.health != nil {
		if err := b.health.Ping(ctx); err != nil {
			return nil, estimate.WrapError(estimate.ErrSystemFailure, "batch.store_health", err)
		}
	}

	images := req.Images
	if len(images) > b.opts.MaxImages {
		logging.WithOperation(b.logger, "batch.run", req.RequestID).
			Debug("dropping excess images", zap.Int("received", len(images)), zap.Int("kept", b.opts.MaxImages))
		images = images[:b.opts.MaxImages]
	}
	b.observer.ObserveBatch(len(images))

	outcomes := make([]Outcome, len(images))
	var g errgroup.Group
	g.SetLimit(b.opts.Workers)
	for i := range images {
		g.Go(func() error {
			outcomes[i] = b.process(ctx, req, i, images[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, estimate.WrapError(estimate.ErrSystemFailure, "batch.run", err)
	}
	return outcomes, nil
}

func (b *Batch) process(ctx context.Context, req BatchRequest, index int, img Image) Outcome {
	logger := logging.WithImage(logging.WithOperation(b.logger, "batch.image", req.RequestID), index, img.Filename)

	outcome := b.estimateImage(ctx, req, img)
	switch kind := outcome.Kind(); kind {
	case "":
		b.observer.ObserveOutcome("success", "")
		b.observer.ObserveCost(string(outcome.Record.Estimate.Severity), outcome.Record.Cost())
		logger.Info("image estimated",
			zap.String("record_id", outcome.Record.ID),
			zap.String("damage_type", string(outcome.Record.Category)),
			zap.Int("estimated_cost", outcome.Record.Cost()))
	case estimate.KindSoftRejection:
		b.observer.ObserveOutcome(string(kind), outcome.Reason())
		logger.Debug("image rejected", zap.String("reason", outcome.Reason()))
	default:
		b.observer.ObserveOutcome(string(kind), outcome.Reason())
		logger.Error("image processing failed",
			zap.String("kind", string(kind)),
			zap.String("operation", logging.OperationOf(outcome.Err)),
			zap.Error(outcome.Err))
	}
	return outcome
}

func (b *Batch) estimateImage(ctx context.Context, req BatchRequest, img Image) Outcome {
	if !upload.AllowedFilename(img.Filename) {
		return Outcome{Filename: img.Filename, Err: estimate.Reject(estimate.ReasonInvalidFormat, estimate.Classification{})}
	}
	filename := upload.SanitizeFilename(img.Filename)

	data, err := b.read(img)
	if err != nil {
		return Outcome{Filename: filename, Err: logging.NewOperationError("batch.read", req.RequestID, err)}
	}
	if err := upload.CheckContent(data); err != nil {
		return Outcome{Filename: filename, Err: estimate.Reject(estimate.ReasonInvalidFormat, estimate.Classification{})}
	}

	key := upload.StoredName(filename)
	if err := b.uploads.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return Outcome{Filename: filename, Err: logging.NewOperationError("batch.save_upload", req.RequestID, err)}
	}

	result, err := b.classify(ctx, data)
	if err != nil {
		return Outcome{Filename: filename, Err: logging.NewOperationError("batch.classify", req.RequestID, err)}
	}

	record, err := b.pipeline.Estimate(ctx, EstimateRequest{
		RequestID:      req.RequestID,
		Classification: estimate.NewClassification(result.Label, result.Confidence),
		Vehicle:        req.Vehicle,
		SourceImage:    key,
		OwnerID:        req.OwnerID,
	})
	if err != nil {
		return Outcome{Filename: filename, Err: err}
	}
	return Outcome{Filename: filename, Record: record}
}

func (b *Batch) read(img Image) ([]byte, error) {
	if img.Open == nil {
		return nil, errors.New("image has no content")
	}
	rc, err := img.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, b.opts.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > b.opts.MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", b.opts.MaxImageBytes)
	}
	if len(data) == 0 {
		return nil, classifier.ErrEmptyImage
	}
	return data, nil
}

func (b *Batch) classify(ctx context.Context, data []byte) (*classifier.Result, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, b.opts.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	result, err := b.classifier.Classify(cctx, data)
	b.observer.ObserveClassification(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, classifier.ErrMalformedResponse
	}
	return result, nil
}
