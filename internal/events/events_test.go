package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/damage-estimator/internal/estimate"
)

func TestCreatedEventPayload(t *testing.T) {
	cost := 3850
	record := &estimate.Record{
		ID:       "0b6b1c8e-7d1f-4d4e-9a4f-0c1d2e3f4a5b",
		Category: estimate.CategoryDent,
		Estimate: estimate.CostEstimate{AdjustedCost: &cost},
		OwnerID:  "owner-1",
	}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("IST", 5*3600+1800))

	data, err := json.Marshal(createdEvent(record, at))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "estimate.created",
		"record_id": "0b6b1c8e-7d1f-4d4e-9a4f-0c1d2e3f4a5b",
		"damage_type": "dent",
		"estimated_cost": 3850,
		"user_id": "owner-1",
		"occurred_at": "2025-01-01T21:34:05Z"
	}`, string(data))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "estimates.created", Subject("estimates", TypeCreated))
	assert.Equal(t, "estimates.deleted", Subject("estimates", TypeDeleted))
	assert.Equal(t, "estimates", Subject("estimates", "other"))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.EstimateCreated(context.Background(), &estimate.Record{}))
	assert.NoError(t, p.EstimateDeleted(context.Background(), "id"))
}
