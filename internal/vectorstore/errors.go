package vectorstore

import "errors"

var (
	// ErrConnectionUnavailable is returned when no vector store endpoint responds.
	ErrConnectionUnavailable = errors.New("vector store connection unavailable")

	// ErrCollectionNotFound is returned for operations on a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidEndpoint is returned for an unparseable endpoint URL.
	ErrInvalidEndpoint = errors.New("invalid vector store endpoint")
)
