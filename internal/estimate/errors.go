package estimate

import (
	"errors"
	"fmt"
)

// Kind classifies failures for logging and for the response payload.
type Kind string

const (
	KindSoftRejection   Kind = "soft_rejection"
	KindResourceFailure Kind = "resource_failure"
	KindMalformedInput  Kind = "malformed_input"
	KindSystemFailure   Kind = "system_failure"
)

// Reason names a soft rejection.
type Reason string

const (
	ReasonLowConfidenceOrUnknown Reason = "low_confidence_or_unknown"
	ReasonConfidenceTooLow       Reason = "confidence_too_low"
	ReasonInvalidFormat          Reason = "invalid_format"
)

var reasonMessages = map[Reason]string{
	ReasonLowConfidenceOrUnknown: "Low confidence or unknown damage detected.",
	ReasonConfidenceTooLow:       "Confidence too low for cost estimation.",
	ReasonInvalidFormat:          "Invalid file format.",
}

// Message is the user facing text for the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Rejection is an expected refusal to estimate an image.
type Rejection struct {
	Reason     Reason
	Category   Category
	Confidence float64
}

func (r *Rejection) Error() string {
	return r.Reason.Message()
}

// Reject builds a Rejection for the given classification.
func Reject(reason Reason, c Classification) error {
	return &Rejection{Reason: reason, Category: c.Category, Confidence: c.Confidence}
}

var (
	// ErrRecordNotFound is returned when no record matches an id.
	ErrRecordNotFound = errors.New("estimation record not found")
	// ErrMalformedInput marks caller errors.
	ErrMalformedInput = errors.New("malformed input")
	// ErrSystemFailure marks request level failures.
	ErrSystemFailure = errors.New("system failure")
)

// WrapError tags err with a kind sentinel and the operation it came from.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// KindOf classifies an error. Anything unrecognised is a resource failure.
func KindOf(err error) Kind {
	var rejection *Rejection
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejection):
		return KindSoftRejection
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrSystemFailure):
		return KindSystemFailure
	default:
		return KindResourceFailure
	}
}
