package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/events"
	"github.com/example/damage-estimator/internal/logging"
	"github.com/example/damage-estimator/internal/repository"
)

// Summarizer aggregates stored records.
type Summarizer interface {
	Summarize(ctx context.Context) (*repository.Summary, error)
}

// Records serves the read and admin operations on stored estimations.
type Records struct {
	store      RecordStore
	summarizer Summarizer
	events     events.Publisher
	logger     *zap.Logger
}

// NewRecords creates the record service. A nil publisher disables events.
func NewRecords(store RecordStore, summarizer Summarizer, publisher events.Publisher, logger *zap.Logger) *Records {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Records{
		store:      store,
		summarizer: summarizer,
		events:     publisher,
		logger:     logger.Named("records"),
	}
}

// ListRecent returns every record, newest first.
func (r *Records) ListRecent(ctx context.Context) ([]estimate.Record, error) {
	return r.store.ListRecent(ctx)
}

// Get returns one record or estimate.ErrRecordNotFound.
func (r *Records) Get(ctx context.Context, id string) (*estimate.Record, error) {
	return r.store.FindByID(ctx, strings.TrimSpace(id))
}

// Delete removes a record. It reports false when nothing matched.
func (r *Records) Delete(ctx context.Context, requestID, id string) (bool, error) {
	id = strings.TrimSpace(id)
	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		return false, logging.NewOperationError("records.delete", requestID, err)
	}
	if !deleted {
		return false, nil
	}

	logger := logging.WithOperation(r.logger, "records.delete", requestID)
	logger.Info("estimation deleted", zap.String("record_id", id))
	if err := r.events.EstimateDeleted(ctx, id); err != nil {
		logger.Warn("failed to publish delete event", zap.Error(err), zap.String("record_id", id))
	}
	return true, nil
}

// Summary represents aggregated estimation insights.
type Summary struct {
	TotalRecords      int64            `json:"total_records"`
	TotalCost         int64            `json:"total_estimated_cost"`
	AverageCost       float64          `json:"average_estimated_cost"`
	AverageConfidence float64          `json:"average_confidence"`
	BySeverity        map[string]int64 `json:"by_severity"`
	ByCategory        map[string]int64 `json:"by_damage_type"`
}

// GetSummary aggregates estimation metrics from persisted records.
func (r *Records) GetSummary(ctx context.Context) (*Summary, error) {
	aggregation, err := r.summarizer.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalRecords:      aggregation.TotalRecords,
		TotalCost:         aggregation.TotalCost,
		AverageCost:       aggregation.AverageCost,
		AverageConfidence: aggregation.AverageConfidence,
		BySeverity:        aggregation.BySeverity,
		ByCategory:        aggregation.ByCategory,
	}
	if summary.BySeverity == nil {
		summary.BySeverity = map[string]int64{}
	}
	if summary.ByCategory == nil {
		summary.ByCategory = map[string]int64{}
	}
	return summary, nil
}
