package extraction

import "fmt"

// ExtractionError is returned for every extraction failure: the service was
// unreachable, timed out, answered with a non-success status, or produced a
// response that failed parsing or validation.
type ExtractionError struct {
	Message string

	// StatusCode is the service status when one is known, 0 otherwise.
	StatusCode int

	// Offset and Snippet locate a JSON syntax failure in the cleaned response.
	// Offset is -1 when the failure was not a parse error.
	Offset  int64
	Snippet string

	Err error
}

func (e *ExtractionError) Error() string {
	return e.Message
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func newExtractionError(format string, args ...interface{}) *ExtractionError {
	return &ExtractionError{Message: fmt.Sprintf(format, args...), Offset: -1}
}

// ServiceError is returned by a Generator when the model service could not be
// reached or answered with a non-success status.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
