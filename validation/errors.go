// Package validation checks raw request payloads for users and cases and turns
// them into typed inputs. It has no dependencies on storage or transport so the
// same rules can be applied wherever a payload enters the system.
package validation

import (
	"errors"
	"strings"
)

// Problem describes a single failing field.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned whenever an input is rejected. It lists every problem found
// so callers can report them together.
type Error struct {
	Problems []Problem
}

func (e *Error) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "validation: invalid input"
	}
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Message)
	}
	return strings.Join(msgs, "; ")
}

// IsValidationError reports whether err carries a *Error.
func IsValidationError(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

// collector accumulates problems while a payload is walked.
type collector struct {
	problems []Problem
}

func (c *collector) add(field, message string) {
	c.problems = append(c.problems, Problem{Field: field, Message: message})
}

func (c *collector) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &Error{Problems: c.problems}
}

// Fail builds an *Error with a single problem.
func Fail(field, message string) error {
	return &Error{Problems: []Problem{{Field: field, Message: message}}}
}
