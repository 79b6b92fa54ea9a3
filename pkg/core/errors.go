package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Programmer errors. These signal misuse and are always returned as the error
// value of an operation, never folded into a Response.
var (
	ErrUnknownDriver     = errors.New("unknown driver")
	ErrUnknownModel      = errors.New("unknown model")
	ErrUnknownRelation   = errors.New("unknown relation")
	ErrUnknownScope      = errors.New("unknown scope")
	ErrMissingPrimaryKey = errors.New("missing primary key")
	ErrNoRecordsPerPage  = errors.New("pagination requires recordsPerPage")
)

// Runtime failures. These end up in a Response's standard errors.
var (
	ErrAborted         = errors.New("request aborted")
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrBeyondLastPage  = errors.New("beyond last page")
	ErrBeforeFirstPage = errors.New("before first page")
	ErrReadOnly        = errors.New("repository is in read-only mode")
)

// IsProgrammerError reports whether err indicates misuse of the API.
func IsProgrammerError(err error) bool {
	for _, target := range []error{
		ErrUnknownDriver, ErrUnknownModel, ErrUnknownRelation, ErrUnknownScope,
		ErrMissingPrimaryKey, ErrNoRecordsPerPage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DriverError is the error drivers return to carry transport details and
// structured field errors.
type DriverError struct {
	Name       string
	Message    string
	Status     int
	Details    any
	Validation ValidationErrors
	Err        error
}

func (e *DriverError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NotFound builds the error returned when id is absent from the backing store.
func NotFound(entity, id string) error {
	return &DriverError{
		Name:    "not found",
		Message: fmt.Sprintf("%s %q not found", entity, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Invalid builds a validation failure.
func Invalid(fields ValidationErrors) error {
	return &DriverError{
		Name:       "validation",
		Message:    "validation failed",
		Status:     http.StatusUnprocessableEntity,
		Validation: fields,
	}
}

// PageError reports a page request outside [1, PagesCount].
type PageError struct {
	Page       int
	PagesCount int
	Err        error
}

func (e *PageError) Error() string {
	if errors.Is(e.Err, ErrBeforeFirstPage) {
		return fmt.Sprintf("page %d is before first page", e.Page)
	}
	return fmt.Sprintf("page %d is beyond last page (%d)", e.Page, e.PagesCount)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
