package auth0

import "fmt"

// StatusError reports an unexpected HTTP status from a mutating
// Management API call. It carries the response body so a failed run
// can be diagnosed from the log alone.
type StatusError struct {
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("auth0: %s returned status %d", e.Operation, e.Code)
	}
	return fmt.Sprintf("auth0: %s returned status %d: %s", e.Operation, e.Code, e.Body)
}
