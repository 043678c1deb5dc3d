package main

import "errors"

var (
	// ErrProviderUnavailable covers network errors, timeouts and non-2xx answers.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrEmptyResult is a 2xx answer with no usable images.
	ErrEmptyResult = errors.New("no matching images")
	// ErrAllProvidersExhausted is terminal for a search call.
	ErrAllProvidersExhausted = errors.New("no images found from any source")

	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")

	ErrInvalidQuery       = errors.New("invalid query")
	ErrFetchInProgress    = errors.New("fetch already in progress")
	ErrStaleResult        = errors.New("result belongs to a superseded query")
	ErrNoMoreResults      = errors.New("no more results")
	ErrPaginationDisabled = errors.New("pagination disabled")
	ErrSessionNotFound    = errors.New("feed session not found")
)
