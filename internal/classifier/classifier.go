// Package classifier defines the boundary to the damage classification model.
package classifier

import (
	"context"
	"errors"
)

// Result is the top prediction returned for an image.
type Result struct {
	Label      string
	Confidence float64
}

// Client classifies a single encoded image.
type Client interface {
	Classify(ctx context.Context, image []byte) (*Result, error)
}

// Func adapts a function to the Client interface.
type Func func(ctx context.Context, image []byte) (*Result, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, image []byte) (*Result, error) {
	return f(ctx, image)
}

// ErrEmptyImage is returned when there are no bytes to classify.
var ErrEmptyImage = errors.New("classifier: empty image")

// ErrUnreadableImage is returned when the backend rejects the image itself.
// It reflects the input, not the health of the backend.
var ErrUnreadableImage = errors.New("classifier: unreadable image")

// ErrMalformedResponse is returned when the backend reply has no usable prediction.
var ErrMalformedResponse = errors.New("classifier: malformed response")
