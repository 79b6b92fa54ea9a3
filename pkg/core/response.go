package core

import (
	"errors"
	"strings"
)

// Action tags a Response with the operation that produced it.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionIndex      Action = "index"
	ActionFind       Action = "find"
	ActionDestroy    Action = "destroy"
	ActionBulkUpdate Action = "bulk-update"
	ActionSync       Action = "sync"
)

// Standard error names.
const (
	ErrorAborted    = "aborted"
	ErrorNotFound   = "not found"
	ErrorLastPage   = "beyond last page"
	ErrorFirstPage  = "before first page"
	ErrorValidation = "validation"
	ErrorStandard   = "error"
)

// StandardError is a non-field failure.
type StandardError struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Details    any    `json:"details,omitempty"`
}

// ValidationErrors maps a field path to its messages.
type ValidationErrors map[string][]string

// SyncResult lists the related keys touched by a sync.
type SyncResult struct {
	Attached []string `json:"attached"`
	Detached []string `json:"detached"`
	Updated  []string `json:"updated"`
}

// Response is the uniform envelope returned by every action.
type Response struct {
	Action     Action      `json:"action"`
	Entity     string      `json:"entity,omitempty"`
	Driver     string      `json:"driver,omitempty"`
	Success    bool        `json:"success"`
	Record     Record      `json:"record,omitempty"`
	Records    []Record    `json:"records,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Sync       *SyncResult `json:"sync,omitempty"`

	StandardErrors   []StandardError  `json:"standardErrors,omitempty"`
	ValidationErrors ValidationErrors `json:"validationErrors,omitempty"`
}

// Aborted reports whether the response failed because its request was aborted.
func (r *Response) Aborted() bool {
	for _, e := range r.StandardErrors {
		if e.Name == ErrorAborted {
			return true
		}
	}
	return false
}

// Err returns nil for a successful response and a *ResponseError otherwise.
func (r *Response) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &ResponseError{Response: r}
}

// ResponseError carries a failed Response through the error channel.
type ResponseError struct {
	Response *Response
}

func (e *ResponseError) Error() string {
	var msgs []string
	for _, s := range e.Response.StandardErrors {
		msgs = append(msgs, s.Message)
	}
	for field, v := range e.Response.ValidationErrors {
		msgs = append(msgs, field+": "+strings.Join(v, ", "))
	}
	if len(msgs) == 0 {
		return string(e.Response.Action) + " failed"
	}
	return string(e.Response.Action) + " failed: " + strings.Join(msgs, "; ")
}

// Unwrap maps well known standard error names back to their sentinels.
func (e *ResponseError) Unwrap() error {
	for _, s := range e.Response.StandardErrors {
		switch s.Name {
		case ErrorAborted:
			return ErrAborted
		case ErrorNotFound:
			return ErrNotFound
		case ErrorLastPage:
			return ErrBeyondLastPage
		case ErrorFirstPage:
			return ErrBeforeFirstPage
		}
	}
	return nil
}

// AsResponse extracts the Response carried by err, if any.
func AsResponse(err error) (*Response, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Response, true
	}
	return nil, false
}
