package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/usecase"
)

// MaxUploadSize bounds the whole multipart body of a prediction request.
const MaxUploadSize = 64 << 20

const requestIDHeader = "X-Request-ID"

// BatchRunner executes a prediction batch.
type BatchRunner interface {
	Run(ctx context.Context, req usecase.BatchRequest) ([]usecase.Outcome, error)
}

// RecordService exposes stored estimations.
type RecordService interface {
	ListRecent(ctx context.Context) ([]estimate.Record, error)
	Get(ctx context.Context, id string) (*estimate.Record, error)
	Delete(ctx context.Context, requestID, id string) (bool, error)
	GetSummary(ctx context.Context) (*usecase.Summary, error)
}

// FileLocator resolves a stored file name to a local path.
type FileLocator interface {
	Path(key string) (string, error)
}

// Options tune the HTTP surface.
type Options struct {
	// PublicBaseURL prefixes annotated image links. Empty uses the request host.
	PublicBaseURL  string
	MaxUploadBytes int64
	// RateLimit is the sustained predictions per second per client IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Handler serves the estimation API.
type Handler struct {
	batch     BatchRunner
	records   RecordService
	costs     *estimate.CostTable
	predicted FileLocator
	logger    *zap.Logger
	opts      Options
	limiter   *ipLimiter
}

// New builds the API handler.
func New(batch BatchRunner, records RecordService, costs *estimate.CostTable, predicted FileLocator, logger *zap.Logger, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = MaxUploadSize
	}
	h := &Handler{
		batch:     batch,
		records:   records,
		costs:     costs,
		predicted: predicted,
		logger:    logger.Named("http"),
		opts:      opts,
	}
	if opts.RateLimit > 0 {
		h.limiter = newIPLimiter(opts.RateLimit, opts.RateBurst)
	}
	return h
}

// RegisterRoutes wires the HTTP handlers to the Gin router. adminAuth guards
// the admin routes and normally holds the JWT and role middleware.
func RegisterRoutes(router *gin.Engine, h *Handler, adminAuth ...gin.HandlerFunc) {
	router.Use(requestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Vehicle Damage Estimation Server is Running")
	})

	predictChain := []gin.HandlerFunc{}
	if h.limiter != nil {
		predictChain = append(predictChain, h.limiter.middleware())
	}
	predictChain = append(predictChain, h.predict)
	api.POST("/predict", predictChain...)

	api.GET("/predicted/:filename", h.servePredicted)
	api.GET("/predictions", h.listPredictions)
	api.GET("/predictions/:id", h.getPrediction)
	api.GET("/vehicles", h.vehicles)

	admin := api.Group("/admin", adminAuth...)
	admin.DELETE("/predictions/:id", h.deletePrediction)
	admin.GET("/summary", h.summary)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func (h *Handler) vehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"brands":       h.costs.Catalog(),
		"damage_types": h.costs.Categories(),
	})
}
