package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
	"github.com/example/damage-estimator/internal/usecase"
)

const noImagesMessage = "No images found in the request"

func (h *Handler) predict(c *gin.Context) {
	requestID := getRequestID(c)
	logger := logging.WithOperation(h.logger, "http.predict", requestID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"status":  "error",
				"kind":    estimate.KindMalformedInput,
				"message": "Request too large.",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": noImagesMessage})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": noImagesMessage})
		return
	}

	images := make([]usecase.Image, 0, len(files))
	for _, fh := range files {
		images = append(images, usecase.Image{
			Filename: fh.Filename,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	outcomes, err := h.batch.Run(c.Request.Context(), usecase.BatchRequest{
		RequestID: requestID,
		Images:    images,
		Vehicle:   estimate.NewVehicle(c.PostForm("vehicle_name"), c.PostForm("vehicle_model")),
		OwnerID:   strings.TrimSpace(c.PostForm("user")),
	})
	if err != nil {
		if estimate.KindOf(err) == estimate.KindMalformedInput {
			c.JSON(http.StatusBadRequest, gin.H{"error": noImagesMessage})
			return
		}
		logger.Error("prediction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"kind":    estimate.KindSystemFailure,
			"message": "Prediction failed.",
		})
		return
	}

	base := h.baseURL(c)
	results := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, outcomeView(o, base))
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": results})
}

func outcomeView(o usecase.Outcome, base string) gin.H {
	if !o.Succeeded() {
		return gin.H{
			"error":    o.Message(),
			"kind":     o.Kind(),
			"filename": o.Filename,
		}
	}
	r := o.Record
	return gin.H{
		"damage":              r.Category,
		"confidence":          confidencePercent(r.Confidence),
		"estimated_cost":      r.Cost(),
		"severity":            r.Estimate.Severity,
		"cost_range":          r.Estimate.CostRange,
		"annotated_image_url": annotatedURL(base, r.AnnotatedImage),
		"filename":            o.Filename,
	}
}

func confidencePercent(confidence float64) float64 {
	return math.Round(confidence*10000) / 100
}

func annotatedURL(base, name string) string {
	if name == "" {
		return ""
	}
	return base + "/api/predicted/" + url.PathEscape(name)
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.opts.PublicBaseURL != "" {
		return strings.TrimRight(h.opts.PublicBaseURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

func (h *Handler) servePredicted(c *gin.Context) {
	path, err := h.predicted.Path(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
}
