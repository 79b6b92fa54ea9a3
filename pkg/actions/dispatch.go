package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/scope"
)

type invocation struct {
	action core.Action
	model  *core.Model
	opts   core.Options
	// paginate marks calls resolving recordsPerPage through the config chain.
	paginate bool
}

type outcome struct {
	resp *core.Response
	err  error
}

// driverFunc runs the driver operation and fills the payload of resp.
type driverFunc func(ctx context.Context, d core.Driver, opts core.DriverOptions, resp *core.Response) error

// dispatch resolves the driver and configuration, races the driver call
// against the caller's signal and folds the outcome into a Response.
func (r *Runtime) dispatch(ctx context.Context, inv invocation, run driverFunc) (*core.Response, error) {
	name, driver, err := r.Drivers.Resolve(inv.opts.Driver)
	if err != nil {
		return nil, err
	}
	cfg := r.config()

	throw := cfg.Throw(name, inv.opts.Throw)
	notify := cfg.NotifyOnError(name, inv.action, inv.opts.NotifyOnError)
	resp := &core.Response{Action: inv.action, Entity: inv.model.Entity, Driver: name}

	signal := inv.opts.Signal
	if signal.Aborted() {
		fail(resp, aborted(signal.Reason()))
		return r.settle(inv, resp, throw, notify)
	}
	if err := ctx.Err(); err != nil {
		fail(resp, aborted(err))
		return r.settle(inv, resp, throw, notify)
	}

	frag, err := scope.Resolve(cfg, scope.Request{
		Model:         inv.model,
		Action:        inv.action,
		Driver:        name,
		Scopes:        inv.opts.Scopes,
		WithoutGlobal: inv.opts.WithoutGlobalScopes,
		WithoutEntity: inv.opts.WithoutEntityGlobalScopes,
		Own:           core.Fragment{Filters: inv.opts.Filters, With: inv.opts.With, OrderBy: inv.opts.OrderBy},
	})
	if err != nil {
		return nil, err
	}

	dopts := core.DriverOptions{
		Filters:          frag.Filters,
		With:             frag.With,
		OrderBy:          frag.OrderBy,
		Pagination:       inv.opts.Pagination,
		Signal:           signal,
		WithoutDetaching: inv.opts.WithoutDetaching,
	}
	if inv.paginate {
		dopts.Pagination = pagination(cfg, name, inv.opts.Pagination)
	}

	if r.Logger != nil {
		r.Logger.Debug("dispatching",
			"action", string(inv.action),
			"entity", inv.model.Entity,
			"driver", name,
		)
	}

	dctx, cancel := signal.Context(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	lifecycle.Go(dctx, func(ctx context.Context) error {
		payload := &core.Response{}
		err := run(ctx, driver, dopts, payload)
		done <- outcome{resp: payload, err: err}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		select {
		case done <- outcome{err: fmt.Errorf("driver %s panicked: %w", name, err)}:
		default:
		}
	}))

	var o outcome
	select {
	case o = <-done:
	case <-signal.Done():
		o = settledOr(done, aborted(signal.Reason()))
	case <-ctx.Done():
		o = settledOr(done, aborted(ctx.Err()))
	}

	if o.err != nil && core.IsProgrammerError(o.err) {
		return nil, o.err
	}
	if o.err != nil {
		fail(resp, o.err)
	} else {
		resp.Success = true
		resp.Record = o.resp.Record
		resp.Records = o.resp.Records
		resp.Pagination = o.resp.Pagination
		resp.Sync = o.resp.Sync
	}
	return r.settle(inv, resp, throw, notify)
}

// settledOr prefers a driver result that settled concurrently with the abort.
func settledOr(done <-chan outcome, err error) outcome {
	select {
	case o := <-done:
		return o
	default:
		return outcome{err: err}
	}
}

func (r *Runtime) settle(inv invocation, resp *core.Response, throw, notify bool) (*core.Response, error) {
	if resp.Success {
		return resp, nil
	}
	if r.Logger != nil {
		r.Logger.Debug("action failed",
			"action", string(inv.action),
			"entity", inv.model.Entity,
			"driver", resp.Driver,
			"error", (&core.ResponseError{Response: resp}).Error(),
		)
	}
	if notify {
		r.notify(inv, resp)
	}
	if throw {
		return nil, &core.ResponseError{Response: resp}
	}
	return resp, nil
}

func (r *Runtime) notify(inv invocation, resp *core.Response) {
	fn := r.config().Notifier(inv.action)
	if fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil && r.Logger != nil {
			r.Logger.Error("error notifier panicked", "action", string(inv.action), "panic", p)
		}
	}()
	fn(config.Notification{
		Model:            inv.model,
		Action:           inv.action,
		Driver:           resp.Driver,
		StandardErrors:   resp.StandardErrors,
		ValidationErrors: resp.ValidationErrors,
	})
}

func pagination(cfg *config.Context, driver string, req *core.Pagination) *core.Pagination {
	var call *int
	if req != nil && req.RecordsPerPage > 0 {
		call = &req.RecordsPerPage
	}
	perPage := cfg.RecordsPerPage(driver, call)
	if perPage <= 0 {
		return req
	}
	out := &core.Pagination{RecordsPerPage: perPage}
	if req != nil {
		out.Page = req.Page
	}
	return out
}

func aborted(reason error) error {
	if reason == nil || errors.Is(reason, core.ErrAborted) {
		return core.ErrAborted
	}
	return fmt.Errorf("%w: %v", core.ErrAborted, reason)
}

// fail records err on resp. Field errors go to ValidationErrors only.
func fail(resp *core.Response, err error) {
	resp.Success = false

	var (
		de *core.DriverError
		pe *core.PageError
	)
	switch {
	case errors.Is(err, core.ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.StandardErrors = append(resp.StandardErrors, core.StandardError{
			Name:    core.ErrorAborted,
			Message: err.Error(),
		})
	case errors.As(err, &pe):
		name := core.ErrorLastPage
		if errors.Is(pe, core.ErrBeforeFirstPage) {
			name = core.ErrorFirstPage
		}
		resp.StandardErrors = append(resp.StandardErrors, core.StandardError{
			Name:    name,
			Message: pe.Error(),
			Details: map[string]int{"page": pe.Page, "pagesCount": pe.PagesCount},
		})
	case errors.As(err, &de):
		if len(de.Validation) > 0 {
			resp.ValidationErrors = de.Validation
			return
		}
		name := de.Name
		if name == "" {
			name = core.ErrorStandard
			if errors.Is(de, core.ErrNotFound) {
				name = core.ErrorNotFound
			}
		}
		resp.StandardErrors = append(resp.StandardErrors, core.StandardError{
			Name:       name,
			Message:    de.Message,
			HTTPStatus: de.Status,
			Details:    de.Details,
		})
	case errors.Is(err, core.ErrNotFound):
		resp.StandardErrors = append(resp.StandardErrors, core.StandardError{
			Name:       core.ErrorNotFound,
			Message:    err.Error(),
			HTTPStatus: http.StatusNotFound,
		})
	default:
		resp.StandardErrors = append(resp.StandardErrors, core.StandardError{
			Name:    core.ErrorStandard,
			Message: err.Error(),
		})
	}
}
