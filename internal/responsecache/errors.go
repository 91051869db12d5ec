package responsecache

import "errors"

var (
	// ErrInvalidQuery is returned for a query that cannot be executed, such
	// as an empty id lookup or empty semantic text.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidTimeRange is returned when an analytics start is after its end.
	ErrInvalidTimeRange = errors.New("invalid time range")
)
