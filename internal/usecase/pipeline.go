package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/events"
	"github.com/example/damage-estimator/internal/logging"
)

// RecordStore abstracts persistence of estimation records.
type RecordStore interface {
	Insert(ctx context.Context, record *estimate.Record) error
	ListRecent(ctx context.Context) ([]estimate.Record, error)
	FindByID(ctx context.Context, id string) (*estimate.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Annotator produces a labelled copy of a stored upload and returns its key.
type Annotator interface {
	Annotate(ctx context.Context, sourceKey, label string) (string, error)
}

// EstimateRequest carries one classified image through the pipeline.
type EstimateRequest struct {
	RequestID      string
	Classification estimate.Classification
	Vehicle        estimate.Vehicle
	SourceImage    string
	// OwnerID is the raw caller supplied owner. Malformed values are dropped.
	OwnerID string
}

// Pipeline turns a classification into a persisted, priced record.
type Pipeline struct {
	costs     *estimate.CostTable
	annotator Annotator
	store     RecordStore
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewPipeline wires the estimation dependencies. A nil publisher disables events.
func NewPipeline(costs *estimate.CostTable, annotator Annotator, store RecordStore, publisher events.Publisher, logger *zap.Logger) *Pipeline {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Pipeline{
		costs:     costs,
		annotator: annotator,
		store:     store,
		events:    publisher,
		logger:    logger.Named("pipeline"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// Estimate validates the classification, prices it, annotates the source image
// and stores the record. Soft failures are returned as *estimate.Rejection.
func (p *Pipeline) Estimate(ctx context.Context, req EstimateRequest) (*estimate.Record, error) {
	c := req.Classification
	if !c.ValidConfidence() || c.Confidence < estimate.ConfidenceThreshold || !p.costs.Known(c.Category) {
		return nil, estimate.Reject(estimate.ReasonLowConfidenceOrUnknown, c)
	}

	priced := p.costs.Price(req.Vehicle, c)
	if priced.AdjustedCost == nil {
		return nil, estimate.Reject(estimate.ReasonConfidenceTooLow, c)
	}

	annotated, err := p.annotator.Annotate(ctx, req.SourceImage, string(c.Category))
	if err != nil {
		return nil, logging.NewOperationError("pipeline.annotate", req.RequestID, err)
	}

	record := &estimate.Record{
		ID:             p.newID(),
		Vehicle:        req.Vehicle,
		SourceImage:    req.SourceImage,
		AnnotatedImage: annotated,
		Category:       c.Category,
		Confidence:     c.Confidence,
		Estimate:       priced,
		CreatedAt:      p.now(),
		OwnerID:        p.ownerID(req),
	}

	if err := p.store.Insert(ctx, record); err != nil {
		return nil, logging.NewOperationError("pipeline.insert", req.RequestID, err)
	}

	if err := p.events.EstimateCreated(ctx, record); err != nil {
		logging.WithOperation(p.logger, "pipeline.publish", req.RequestID).
			Warn("failed to publish estimate event", zap.Error(err), zap.String("record_id", record.ID))
	}

	return record, nil
}

func (p *Pipeline) ownerID(req EstimateRequest) string {
	owner, ok := NormalizeOwnerID(req.OwnerID)
	if !ok && req.OwnerID != "" {
		logging.WithOperation(p.logger, "pipeline.owner", req.RequestID).
			Debug("ignoring malformed owner id", zap.String("owner_id", req.OwnerID))
	}
	return owner
}

// NormalizeOwnerID returns the canonical form of a UUID owner id.
func NormalizeOwnerID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
