package models

import "errors"

var (
	// ErrInvalidInput is returned when a caller violates an input contract,
	// such as an empty pixel population or degenerate field bounds.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotAvailable is returned by a data source that could not produce an
	// observation. It is an expected outcome, not a failure of the caller.
	ErrNotAvailable = errors.New("observation not available")

	// ErrNoData is returned when neither a provider nor the cache could supply
	// an observation for a field.
	ErrNoData = errors.New("no data")

	// ErrConfigurationMissing is returned when provider credentials or
	// endpoints are not configured.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrNoScenes is returned when a provider catalogue has no scene matching
	// the search window and cloud-cover limit.
	ErrNoScenes = errors.New("no scenes found")

	// ErrMalformedResponse is returned when a provider payload cannot be parsed.
	ErrMalformedResponse = errors.New("malformed provider response")
)
