package client

import (
	"errors"
	"fmt"
)

// ErrMissingPagination is returned when a page body carries no
// pagination block, which makes the walk unable to decide whether a
// successor page exists.
var ErrMissingPagination = errors.New("page has no pagination block")

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// HTTPError represents a non-success HTTP response from the Functest
// API. The client never retries: every HTTPError aborts the walk that
// produced it.
type HTTPError struct {
	StatusCode int
	Class      ErrorClass
	URL        string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("functest %s error (status %d): GET %s",
		e.Class, e.StatusCode, e.URL)
}

// classifyStatus categorizes an HTTP status code for observability.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
