// Package httpclassifier talks to a model service exposing a JSON classify endpoint.
package httpclassifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/classifier"
	"github.com/example/damage-estimator/internal/logging"
)

const maxReplyBytes = 64 << 10

type classifyReply struct {
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// Client posts raw image bytes to <baseURL>/classify.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. A nil httpClient gets one with the given timeout.
func New(baseURL string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/classify",
		httpClient: httpClient,
		logger:     logger.Named("http_classifier"),
	}
}

// HTTPClient exposes the underlying client, mainly for tests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Classify implements classifier.Client.
func (c *Client) Classify(ctx context.Context, image []byte) (*classifier.Result, error) {
	if len(image) == 0 {
		return nil, classifier.ErrEmptyImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, logging.NewOperationError("httpclassifier.build_request", "", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("httpclassifier.classify", "", err)
		c.logger.Error("classifier request failed", zap.Error(wrapped), zap.String("endpoint", c.endpoint))
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, logging.NewOperationError("httpclassifier.read_reply", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests &&
			resp.StatusCode != http.StatusRequestTimeout {
			err = fmt.Errorf("%w: %w", classifier.ErrUnreadableImage, err)
		}
		wrapped := logging.NewOperationError("httpclassifier.classify", "", err)
		c.logger.Error("classifier returned error status", zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	var reply classifyReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, logging.NewOperationError("httpclassifier.decode_reply", "", fmt.Errorf("%w: %v", classifier.ErrMalformedResponse, err))
	}
	if reply.Label == nil || reply.Confidence == nil {
		return nil, logging.NewOperationError("httpclassifier.decode_reply", "", classifier.ErrMalformedResponse)
	}
	return &classifier.Result{Label: *reply.Label, Confidence: *reply.Confidence}, nil
}
