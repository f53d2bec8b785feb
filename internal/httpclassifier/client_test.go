package httpclassifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/classifier"
)

const testBaseURL = "http://model.local:5000/"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := New(testBaseURL, &http.Client{}, time.Second, zap.NewNop())
	httpmock.ActivateNonDefault(c.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestClassifyParsesReply(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://model.local:5000/classify",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			if string(body) != "\x89PNG\r\n\x1a\nrest" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad body"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"label": "flat tire", "confidence": 0.71})
		})

	res, err := c.Classify(context.Background(), []byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "flat tire", res.Label)
	assert.InDelta(t, 0.71, res.Confidence, 1e-9)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClassifyReportsServerErrors(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://model.local:5000/classify",
		httpmock.NewStringResponder(http.StatusInternalServerError, "model not loaded"))

	_, err := c.Classify(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.NotErrorIs(t, err, classifier.ErrUnreadableImage)
}

func TestClassifyMapsClientErrorsToUnreadableImage(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://model.local:5000/classify",
		httpmock.NewStringResponder(http.StatusBadRequest, "image unreadable"))

	_, err := c.Classify(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, classifier.ErrUnreadableImage)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestClassifyRejectsIncompleteReply(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://model.local:5000/classify",
		httpmock.NewStringResponder(http.StatusOK, `{"label":"dent"}`))

	_, err := c.Classify(context.Background(), []byte("img"))
	assert.True(t, errors.Is(err, classifier.ErrMalformedResponse), "got %v", err)
}

func TestClassifyRejectsEmptyImage(t *testing.T) {
	c := newMockedClient(t)
	_, err := c.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, classifier.ErrEmptyImage)
	assert.Zero(t, httpmock.GetTotalCallCount())
}
