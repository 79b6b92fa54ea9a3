package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/aretw0/strata/pkg/actions"
	"github.com/aretw0/strata/pkg/core"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 4 << 20

// Handler serves the CRUD actions of a runtime over HTTP.
type Handler struct {
	runtime *actions.Runtime
	logger  *slog.Logger
	router  *mux.Router
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger used for request logs.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler routes every entity of rt's schema:
//
//	GET    /{entity}                      index
//	POST   /{entity}                      create
//	PATCH  /{entity}                      bulk update
//	GET    /{entity}/{id}                 find
//	PATCH  /{entity}/{id}                 update
//	DELETE /{entity}/{id}                 destroy
//	POST   /{entity}/{id}/{relation}/sync sync
func NewHandler(rt *actions.Runtime, opts ...HandlerOption) *Handler {
	h := &Handler{runtime: rt}
	for _, opt := range opts {
		opt(h)
	}

	router := mux.NewRouter().UseEncodedPath()
	router.Use(h.logRequests)
	router.HandleFunc("/{entity}", h.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/{entity}", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/{entity}", h.handleBulkUpdate).Methods(http.MethodPatch)
	router.HandleFunc("/{entity}/{id}", h.handleFind).Methods(http.MethodGet)
	router.HandleFunc("/{entity}/{id}", h.handleUpdate).Methods(http.MethodPatch, http.MethodPut)
	router.HandleFunc("/{entity}/{id}", h.handleDestroy).Methods(http.MethodDelete)
	router.HandleFunc("/{entity}/{id}/{relation}/sync", h.handleSync).Methods(http.MethodPost)
	h.router = router
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	resp, err := h.runtime.Index(r.Context(), m, opts)
	if h.settled(w, resp, err) {
		records := resp.Records
		if records == nil {
			records = []core.Record{}
		}
		respondJSON(w, http.StatusOK, indexPayload{Records: records, Pagination: resp.Pagination})
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var form core.Form
	if !decodeBody(w, r, &form) {
		return
	}
	resp, err := h.runtime.Create(r.Context(), m, form, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusCreated, recordPayload{Record: resp.Record})
	}
}

func (h *Handler) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var forms map[string]core.Form
	if !decodeBody(w, r, &forms) {
		return
	}
	resp, err := h.runtime.BulkUpdate(r.Context(), m, forms, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusOK, recordsPayload{Records: resp.Records})
	}
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := pathVar(w, r, "id")
	if !ok {
		return
	}
	resp, err := h.runtime.Find(r.Context(), m, id, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusOK, recordPayload{Record: resp.Record})
	}
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := pathVar(w, r, "id")
	if !ok {
		return
	}
	var form core.Form
	if !decodeBody(w, r, &form) {
		return
	}
	resp, err := h.runtime.Update(r.Context(), m, id, form, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusOK, recordPayload{Record: resp.Record})
	}
}

func (h *Handler) handleDestroy(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := pathVar(w, r, "id")
	if !ok {
		return
	}
	resp, err := h.runtime.Destroy(r.Context(), m, id, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusOK, recordPayload{Record: resp.Record})
	}
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	m, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := pathVar(w, r, "id")
	if !ok {
		return
	}
	relation, ok := pathVar(w, r, "relation")
	if !ok {
		return
	}
	var req syncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts.WithoutDetaching = req.WithoutDetaching
	resp, err := h.runtime.Sync(r.Context(), m, id, relation, req.Forms, opts)
	if h.settled(w, resp, err) {
		respondJSON(w, http.StatusOK, resp.Sync)
	}
}

// prepare resolves the entity and call options. Failures are answered, in
// which case ok is false.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (*core.Model, core.Options, bool) {
	entity, ok := pathVar(w, r, "entity")
	if !ok {
		return nil, core.Options{}, false
	}
	m, err := h.runtime.Model(entity)
	if err != nil {
		respondError(w, http.StatusNotFound, errorBody{Name: core.ErrorNotFound, Message: err.Error()})
		return nil, core.Options{}, false
	}
	opts, err := decodeQuery(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Name: core.ErrorStandard, Message: err.Error()})
		return nil, core.Options{}, false
	}
	// Failures are answered as error bodies, never thrown.
	noThrow := false
	opts.Throw = &noThrow
	return m, opts, true
}

// settled answers programmer errors and failed responses. It reports whether
// the caller still has to write the success payload.
func (h *Handler) settled(w http.ResponseWriter, resp *core.Response, err error) bool {
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsProgrammerError(err) {
			status = http.StatusBadRequest
		}
		if h.logger != nil {
			h.logger.Warn("request rejected", "error", err)
		}
		respondError(w, status, errorBody{Name: core.ErrorStandard, Message: err.Error()})
		return false
	}
	if !resp.Success {
		status, body := failure(resp)
		respondError(w, status, body)
		return false
	}
	return true
}

func pathVar(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil || v == "" {
		respondError(w, http.StatusBadRequest, errorBody{Name: core.ErrorStandard, Message: fmt.Sprintf("invalid %s", name)})
		return "", false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Name: core.ErrorStandard, Message: "invalid request payload: " + err.Error()})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Name: core.ErrorStandard, Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, body errorBody) {
	respondJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Serve runs an HTTP server for handler until ctx is done, then shuts it down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	lifecycle.Go(ctx, func(context.Context) error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		serverErr <- err
	}))
	if logger != nil {
		logger.Info("serving", "addr", addr)
	}

	select {
	case <-ctx.Done():
		if logger != nil {
			logger.Info("shutting down server")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
