package functest

import "errors"

// Errors returned while parsing pages and extracting item metadata.
var (
	// ErrMissingResults is returned when a page body has no `results`
	// key.
	ErrMissingResults = errors.New("page has no results key")

	// ErrMissingID is returned when a record has no `_id` field.
	ErrMissingID = errors.New("record has no _id field")

	// ErrMissingStartDate is returned when a record has no `start_date`
	// field.
	ErrMissingStartDate = errors.New("record has no start_date field")
)
