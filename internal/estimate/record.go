package estimate

import "time"

// CostEstimate is the priced outcome of a classification. AdjustedCost is nil
// when the confidence was too low to price.
type CostEstimate struct {
	BaseCost     int      `json:"base_cost"`
	AdjustedCost *int     `json:"adjusted_cost,omitempty"`
	Severity     Severity `json:"severity"`
	CostRange    string   `json:"cost_range"`
}

// Price builds the estimate for a category, vehicle and confidence.
func (t *CostTable) Price(v Vehicle, c Classification) CostEstimate {
	base := t.Lookup(v, c.Category)
	severity := SeverityOf(c.Category)
	est := CostEstimate{
		BaseCost:  base,
		Severity:  severity,
		CostRange: RangeLabel(severity),
	}
	if adjusted, ok := Adjust(base, c.Confidence); ok {
		est.AdjustedCost = &adjusted
	}
	return est
}

// Record is a persisted successful estimation. Records are never updated.
type Record struct {
	ID             string       `json:"id"`
	Vehicle        Vehicle      `json:"vehicle"`
	SourceImage    string       `json:"image_name"`
	AnnotatedImage string       `json:"annotated_image_name"`
	Category       Category     `json:"damage_type"`
	Confidence     float64      `json:"confidence"`
	Estimate       CostEstimate `json:"estimate"`
	CreatedAt      time.Time    `json:"created_at"`
	OwnerID        string       `json:"user_id,omitempty"`
}

// Cost returns the adjusted cost, or zero when none was produced.
func (r *Record) Cost() int {
	if r == nil || r.Estimate.AdjustedCost == nil {
		return 0
	}
	return *r.Estimate.AdjustedCost
}
