package download

import (
	"errors"
	"fmt"
)

// Terminal download failures: they indicate a structural mismatch between
// the record and what the server returned, so they are never retried.
var (
	ErrEmptyBody    = errors.New("empty response body")
	ErrNotPDF       = errors.New("response content is not a PDF document")
	ErrVerifyFailed = errors.New("written file is missing or empty")
	ErrNoSourceURL  = errors.New("record has no usable document URL")
)

// StatusError reports a non-success HTTP status on a document fetch.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}
