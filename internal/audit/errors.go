package audit

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the harvest pipeline. Match with errors.Is.
var (
	ErrConnectivity       = errors.New("connectivity failure")
	ErrFetch              = errors.New("fetch failure")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrMissingField       = errors.New("missing field")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrWrite              = errors.New("write failure")
)

// FetchFailure reports a non-success HTTP status from the listing endpoint.
type FetchFailure struct {
	URL        string
	StatusCode int
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failure: %s returned status %d", e.URL, e.StatusCode)
}

// Is lets errors.Is(err, ErrFetch) match any FetchFailure.
func (e *FetchFailure) Is(target error) bool {
	return target == ErrFetch
}

// FieldError ties an item-level error class to the offending field.
type FieldError struct {
	Kind  error
	Field string
	Value string
}

func (e *FieldError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%v: %s (%q)", e.Kind, e.Field, e.Value)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// MissingField builds a FieldError for an absent field.
func MissingField(field string) error {
	return &FieldError{Kind: ErrMissingField, Field: field}
}

// Malformed builds a FieldError for a field whose shape was not recognized.
func Malformed(field, value string) error {
	return &FieldError{Kind: ErrMalformedResponse, Field: field, Value: value}
}

// ConnectivityFailure wraps a transport error for the given URL.
func ConnectivityFailure(url string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnectivity, url, err)
}

// WriteFailure wraps an error raised while persisting the report.
func WriteFailure(location string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrWrite, location, err)
}
