package repository

import (
	"context"

	"github.com/example/damage-estimator/internal/logging"
)

// Summary aggregates the stored estimations.
type Summary struct {
	TotalRecords      int64
	TotalCost         int64
	AverageCost       float64
	AverageConfidence float64
	BySeverity        map[string]int64
	ByCategory        map[string]int64
}

type groupCount struct {
	GroupKey   string
	GroupCount int64
}

// Summarize computes totals and per-severity/per-category counts.
func (r *EstimationRepository) Summarize(ctx context.Context) (*Summary, error) {
	db := r.db.WithContext(ctx).Model(&EstimationRow{})

	var totals struct {
		RecordCount   int64
		TotalCost     int64
		AvgCost       float64
		AvgConfidence float64
	}
	err := db.Select("COUNT(*) AS record_count, COALESCE(SUM(estimated_cost), 0) AS total_cost, " +
		"COALESCE(AVG(estimated_cost), 0) AS avg_cost, COALESCE(AVG(confidence), 0) AS avg_confidence").
		Scan(&totals).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.summarize", "", err)
	}

	bySeverity, err := r.countBy(ctx, "severity")
	if err != nil {
		return nil, err
	}
	byCategory, err := r.countBy(ctx, "damage_type")
	if err != nil {
		return nil, err
	}

	return &Summary{
		TotalRecords:      totals.RecordCount,
		TotalCost:         totals.TotalCost,
		AverageCost:       totals.AvgCost,
		AverageConfidence: totals.AvgConfidence,
		BySeverity:        bySeverity,
		ByCategory:        byCategory,
	}, nil
}

func (r *EstimationRepository) countBy(ctx context.Context, column string) (map[string]int64, error) {
	var groups []groupCount
	err := r.db.WithContext(ctx).Model(&EstimationRow{}).
		Select(column + " AS group_key, COUNT(*) AS group_count").
		Group(column).
		Scan(&groups).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.count_by_"+column, "", err)
	}
	out := make(map[string]int64, len(groups))
	for _, g := range groups {
		out[g.GroupKey] = g.GroupCount
	}
	return out, nil
}
