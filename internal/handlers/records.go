package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
)

// recordView is the wire form of a stored estimation.
type recordView struct {
	ID                 string  `json:"_id"`
	VehicleName        string  `json:"vehicle_name"`
	VehicleModel       string  `json:"vehicle_model"`
	ImageName          string  `json:"image_name"`
	AnnotatedImageName string  `json:"annotated_image_name"`
	AnnotatedImageURL  string  `json:"annotated_image_url"`
	DamageType         string  `json:"damage_type"`
	Confidence         float64 `json:"confidence"`
	BaseCost           int     `json:"base_cost"`
	EstimatedCost      int     `json:"estimated_cost"`
	Severity           string  `json:"severity"`
	CostRange          string  `json:"cost_range"`
	UserID             string  `json:"user_id,omitempty"`
	Timestamp          string  `json:"timestamp"`
}

func newRecordView(r *estimate.Record, base string) recordView {
	return recordView{
		ID:                 r.ID,
		VehicleName:        r.Vehicle.Brand,
		VehicleModel:       r.Vehicle.Model,
		ImageName:          r.SourceImage,
		AnnotatedImageName: r.AnnotatedImage,
		AnnotatedImageURL:  annotatedURL(base, r.AnnotatedImage),
		DamageType:         string(r.Category),
		Confidence:         r.Confidence,
		BaseCost:           r.Estimate.BaseCost,
		EstimatedCost:      r.Cost(),
		Severity:           string(r.Estimate.Severity),
		CostRange:          r.Estimate.CostRange,
		UserID:             r.OwnerID,
		Timestamp:          r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *Handler) listPredictions(c *gin.Context) {
	records, err := h.records.ListRecent(c.Request.Context())
	if err != nil {
		logging.WithOperation(h.logger, "http.list_predictions", getRequestID(c)).
			Error("failed to list predictions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history."})
		return
	}

	base := h.baseURL(c)
	views := make([]recordView, 0, len(records))
	for i := range records {
		views = append(views, newRecordView(&records[i], base))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) getPrediction(c *gin.Context) {
	record, err := h.records.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, estimate.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Prediction not found"})
		return
	}
	if err != nil {
		logging.WithOperation(h.logger, "http.get_prediction", getRequestID(c)).
			Error("failed to load prediction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to fetch prediction"})
		return
	}
	c.JSON(http.StatusOK, newRecordView(record, h.baseURL(c)))
}

func (h *Handler) deletePrediction(c *gin.Context) {
	requestID := getRequestID(c)
	deleted, err := h.records.Delete(c.Request.Context(), requestID, c.Param("id"))
	if err != nil {
		logging.WithOperation(h.logger, "http.delete_prediction", requestID).
			Error("failed to delete prediction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Deletion failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Prediction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Prediction deleted"})
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.records.GetSummary(c.Request.Context())
	if err != nil {
		logging.WithOperation(h.logger, "http.summary", getRequestID(c)).
			Error("failed to build summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to build summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
