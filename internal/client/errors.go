package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidates is returned when an operation has no endpoints configured.
var ErrNoCandidates = errors.New("no endpoints configured")

// StatusError is returned for a non-2xx backend response.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// AttemptsError is returned when every candidate failed. Errors holds one
// entry per attempt, in order; errors.Is and errors.As see all of them.
type AttemptsError struct {
	Errors []error
}

func (e *AttemptsError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all %d attempts failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AttemptsError) Unwrap() []error {
	return e.Errors
}

// Last returns the error of the final attempt.
func (e *AttemptsError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Message extracts the most useful backend message from err: the message of
// the last StatusError that carried one, or err's own text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var attempts *AttemptsError
	if errors.As(err, &attempts) {
		for i := len(attempts.Errors) - 1; i >= 0; i-- {
			var se *StatusError
			if errors.As(attempts.Errors[i], &se) && se.Message != "" {
				return se.Message
			}
		}
		if last := attempts.Last(); last != nil {
			return last.Error()
		}
	}
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
