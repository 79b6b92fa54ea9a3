// Package rest exposes the action runtime over HTTP and provides a driver that
// talks to such a server. Both sides share the wire format defined here.
//
// Query options travel as URL parameters: filters, with and orderBy hold JSON,
// page and recordsPerPage hold integers. Failures come back as
//
//	{"name": "...", "message": "...", "details": ..., "errors": {"field": ["..."]}}
//
// with 404 for missing records, 422 for validation and 400 for page bounds.
package rest

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/aretw0/strata/pkg/core"
)

// StatusClientClosedRequest is reported for aborted requests.
const StatusClientClosedRequest = 499

const (
	paramFilters        = "filters"
	paramWith           = "with"
	paramOrderBy        = "orderBy"
	paramPage           = "page"
	paramRecordsPerPage = "recordsPerPage"
	paramDriver         = "driver"
)

type indexPayload struct {
	Records    []core.Record    `json:"records"`
	Pagination *core.Pagination `json:"pagination,omitempty"`
}

type recordPayload struct {
	Record core.Record `json:"record"`
}

type recordsPayload struct {
	Records []core.Record `json:"records"`
}

type syncRequest struct {
	Forms            map[string]core.Form `json:"forms"`
	WithoutDetaching bool                 `json:"withoutDetaching,omitempty"`
}

type errorBody struct {
	Name    string                `json:"name"`
	Message string                `json:"message"`
	Details any                   `json:"details,omitempty"`
	Errors  core.ValidationErrors `json:"errors,omitempty"`
}

// encodeQuery writes the driver options into URL parameters.
func encodeQuery(opts core.DriverOptions) (url.Values, error) {
	q := url.Values{}
	if len(opts.Filters) > 0 {
		b, err := json.Marshal(opts.Filters)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		q.Set(paramFilters, string(b))
	}
	if len(opts.With) > 0 {
		b, err := json.Marshal(opts.With)
		if err != nil {
			return nil, fmt.Errorf("encode with: %w", err)
		}
		q.Set(paramWith, string(b))
	}
	if len(opts.OrderBy) > 0 {
		b, err := json.Marshal(opts.OrderBy)
		if err != nil {
			return nil, fmt.Errorf("encode orderBy: %w", err)
		}
		q.Set(paramOrderBy, string(b))
	}
	if p := opts.Pagination; p != nil {
		if p.Page != nil {
			q.Set(paramPage, strconv.Itoa(*p.Page))
		}
		if p.RecordsPerPage > 0 {
			q.Set(paramRecordsPerPage, strconv.Itoa(p.RecordsPerPage))
		}
	}
	return q, nil
}

// decodeQuery reads call options from URL parameters.
func decodeQuery(q url.Values) (core.Options, error) {
	var opts core.Options
	if v := q.Get(paramFilters); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.Filters); err != nil {
			return opts, fmt.Errorf("invalid %s: %w", paramFilters, err)
		}
	}
	if v := q.Get(paramWith); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.With); err != nil {
			return opts, fmt.Errorf("invalid %s: %w", paramWith, err)
		}
	}
	if v := q.Get(paramOrderBy); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.OrderBy); err != nil {
			return opts, fmt.Errorf("invalid %s: %w", paramOrderBy, err)
		}
	}

	page, hasPage, err := intParam(q, paramPage)
	if err != nil {
		return opts, err
	}
	perPage, hasPerPage, err := intParam(q, paramRecordsPerPage)
	if err != nil {
		return opts, err
	}
	if hasPage || hasPerPage {
		opts.Pagination = &core.Pagination{RecordsPerPage: perPage}
		if hasPage {
			opts.Pagination.Page = &page
		}
	}
	opts.Driver = q.Get(paramDriver)
	return opts, nil
}

func intParam(q url.Values, name string) (int, bool, error) {
	v := q.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, true, nil
}

// failure converts a failed Response into a status code and error body.
func failure(resp *core.Response) (int, errorBody) {
	if len(resp.ValidationErrors) > 0 {
		return http.StatusUnprocessableEntity, errorBody{
			Name:    core.ErrorValidation,
			Message: "validation failed",
			Errors:  resp.ValidationErrors,
		}
	}
	if len(resp.StandardErrors) == 0 {
		return http.StatusInternalServerError, errorBody{Name: core.ErrorStandard, Message: string(resp.Action) + " failed"}
	}

	se := resp.StandardErrors[0]
	body := errorBody{Name: se.Name, Message: se.Message, Details: se.Details}
	switch {
	case se.Name == core.ErrorNotFound:
		return http.StatusNotFound, body
	case se.Name == core.ErrorLastPage, se.Name == core.ErrorFirstPage:
		return http.StatusBadRequest, body
	case se.Name == core.ErrorAborted:
		return StatusClientClosedRequest, body
	case se.HTTPStatus >= 400:
		return se.HTTPStatus, body
	}
	return http.StatusInternalServerError, body
}

// parseError rebuilds the driver error carried by an error body. Only the
// fields needed to classify the failure are read.
func parseError(status int, body []byte) error {
	name, _ := jsonparser.GetString(body, "name")
	message, _ := jsonparser.GetString(body, "message")
	if message == "" {
		message = http.StatusText(status)
	}

	switch name {
	case core.ErrorLastPage, core.ErrorFirstPage:
		page, _ := jsonparser.GetInt(body, "details", "page")
		pages, _ := jsonparser.GetInt(body, "details", "pagesCount")
		pe := &core.PageError{Page: int(page), PagesCount: int(pages), Err: core.ErrBeyondLastPage}
		if name == core.ErrorFirstPage {
			pe.Err = core.ErrBeforeFirstPage
		}
		return pe
	case core.ErrorAborted:
		return fmt.Errorf("%w: %s", core.ErrAborted, message)
	}

	if status == http.StatusUnprocessableEntity {
		if fields, err := validationErrors(body); err == nil && len(fields) > 0 {
			return core.Invalid(fields)
		}
	}

	de := &core.DriverError{Name: name, Message: message, Status: status}
	if de.Name == "" {
		de.Name = core.ErrorStandard
	}
	if status == http.StatusNotFound {
		de.Name = core.ErrorNotFound
		de.Err = core.ErrNotFound
	}
	if raw, dataType, _, err := jsonparser.Get(body, "details"); err == nil && dataType != jsonparser.NotExist {
		var details any
		if json.Unmarshal(raw, &details) == nil {
			de.Details = details
		}
	}
	return de
}

func validationErrors(body []byte) (core.ValidationErrors, error) {
	fields := core.ValidationErrors{}
	err := jsonparser.ObjectEach(body, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.Array {
			return errors.New("field errors must be arrays")
		}
		var msgs []string
		_, err := jsonparser.ArrayEach(value, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
			if msg, err := jsonparser.ParseString(item); err == nil {
				msgs = append(msgs, msg)
			}
		})
		if err != nil {
			return err
		}
		fields[string(key)] = msgs
		return nil
	}, "errors")
	return fields, err
}
