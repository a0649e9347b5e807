package ml

import (
	"errors"
	"fmt"
)

var ErrInvalidPayload = errors.New("invalid payload")

// PayloadError describes a request body that cannot be turned into a batch.
// Reason is the short, user-facing category ("invalid JSON", "unsupported JSON format").
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }

const (
	ReasonInvalidJSON = "invalid JSON"
	ReasonUnsupported = "unsupported JSON format"
	ReasonEmptyBody   = "empty request body"
)

func payloadErrorf(reason, format string, args ...any) error {
	return &PayloadError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

type LoadErrorKind string

const (
	NotFound LoadErrorKind = "not_found"
	Corrupt  LoadErrorKind = "corrupt"
)

type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("model file not found at %s", e.Path)
	default:
		return fmt.Sprintf("failed to load model from %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return "prediction failed: " + e.Err.Error()
}

func (e *PredictionError) Unwrap() error { return e.Err }

func predictionErrorf(format string, args ...any) error {
	return &PredictionError{Err: fmt.Errorf(format, args...)}
}

func corrupt(path string, err error) error {
	return &LoadError{Kind: Corrupt, Path: path, Err: err}
}
