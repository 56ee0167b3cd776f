package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error for callers and for HTTP mapping.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeForbidden              Code = "FORBIDDEN"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeIncompleteAttendance   Code = "INCOMPLETE_ATTENDANCE_DATA"
	CodeMissingPayGrade        Code = "MISSING_PAY_GRADE"
	CodeConflict               Code = "CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

// Generic sentinels. errors.Is(err, ErrNotFound) is true for every NotFound error,
// whichever domain declared it.
var (
	ErrValidation             = kind(CodeValidation, "validation failed")
	ErrNotFound               = kind(CodeNotFound, "not found")
	ErrForbidden              = kind(CodeForbidden, "forbidden")
	ErrInvalidTransition      = kind(CodeInvalidTransition, "invalid transition")
	ErrConcurrentModification = kind(CodeConcurrentModification, "concurrent modification")
	ErrIncompleteAttendance   = kind(CodeIncompleteAttendance, "incomplete attendance data")
	ErrMissingPayGrade        = kind(CodeMissingPayGrade, "missing pay grade")
	ErrConflict               = kind(CodeConflict, "conflict")
)

// Error is a coded domain error. Context fields are optional and are rendered
// into the message and into response details.
type Error struct {
	Code     Code
	Message  string
	Entity   string
	EntityID string
	Expected string
	Actual   string
	Fields   map[string]string

	err     error
	parent  *Error
	generic bool
}

func kind(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, generic: true}
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Entity != "" {
		fmt.Fprintf(&b, " (%s", e.Entity)
		if e.EntityID != "" {
			fmt.Fprintf(&b, " %s", e.EntityID)
		}
		b.WriteString(")")
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, ": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.err != nil {
		fmt.Fprintf(&b, ": %v", e.err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.parent != nil {
		errs = append(errs, e.parent)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// Is matches generic sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.generic && t.Code == e.Code
}

func (e *Error) clone() *Error {
	c := *e
	c.generic = false
	c.parent = e
	if e.Fields != nil {
		c.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// WithEntity returns a copy that names the entity involved. The copy still
// matches the receiver with errors.Is.
func (e *Error) WithEntity(entity, id string) *Error {
	c := e.clone()
	c.Entity = entity
	c.EntityID = id
	return c
}

// WithStates returns a copy carrying the expected and actual state.
func (e *Error) WithStates(expected, actual string) *Error {
	c := e.clone()
	c.Expected = expected
	c.Actual = actual
	return c
}

// WithField returns a copy with one extra detail field.
func (e *Error) WithField(key, value string) *Error {
	c := e.clone()
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	c.Fields[key] = value
	return c
}

// Details flattens the context into a string map for API responses.
func (e *Error) Details() map[string]string {
	d := make(map[string]string)
	for k, v := range e.Fields {
		d[k] = v
	}
	if e.Entity != "" {
		d["entity"] = e.Entity
	}
	if e.EntityID != "" {
		d["entity_id"] = e.EntityID
	}
	if e.Expected != "" {
		d["expected"] = e.Expected
	}
	if e.Actual != "" {
		d["actual"] = e.Actual
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// CodeOf returns the code of the first coded error in the chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As returns the first coded error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
