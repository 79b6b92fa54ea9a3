package composable

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aretw0/strata/pkg/core"
)

// ErrSuperseded is the abort reason given to a request replaced by a newer
// one on the same composable.
var ErrSuperseded = supersededError{}

type supersededError struct{}

func (supersededError) Error() string { return "request superseded" }

// Unwrap makes errors.Is(err, core.ErrAborted) hold.
func (supersededError) Unwrap() error { return core.ErrAborted }

// Request is an in-flight call tracked by a composable.
type Request struct {
	ID        string      `json:"id"`
	Action    core.Action `json:"action"`
	Key       string      `json:"key,omitempty"`
	StartedAt time.Time   `json:"started_at"`

	lane       string
	controller *core.AbortController
}

// Signal returns the cancellation token handed to the action.
func (r *Request) Signal() *core.Signal {
	return r.controller.Signal()
}

// requests is the active-request registry of one composable. Requests are
// grouped in lanes; starting a request aborts the one still running in the
// same lane, so only the latest request of a lane may apply its result.
type requests struct {
	mu     sync.Mutex
	active map[string]*Request
	latest map[string]string // lane -> request id
}

func newRequests() *requests {
	return &requests{
		active: make(map[string]*Request),
		latest: make(map[string]string),
	}
}

// start registers a request in lane, superseding the previous one.
func (r *requests) start(lane string, action core.Action, key string) *Request {
	req := &Request{
		ID:         ulid.Make().String(),
		Action:     action,
		Key:        key,
		StartedAt:  time.Now(),
		lane:       lane,
		controller: core.NewAbortController(),
	}

	r.mu.Lock()
	var previous *Request
	if id, ok := r.latest[lane]; ok {
		previous = r.active[id]
	}
	r.active[req.ID] = req
	r.latest[lane] = req.ID
	r.mu.Unlock()

	if previous != nil {
		previous.controller.Abort(ErrSuperseded)
	}
	return req
}

// settle removes req. It reports whether req was still the latest of its
// lane, i.e. whether its result may be applied. A superseded request never
// is. Only the first call for a request removes it.
func (r *requests) settle(req *Request) (latest bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[req.ID]; !ok {
		return false
	}
	delete(r.active, req.ID)
	if r.latest[req.lane] == req.ID {
		delete(r.latest, req.lane)
		return true
	}
	return false
}

// cancel aborts the latest request of lane.
func (r *requests) cancel(lane string, reason error) bool {
	r.mu.Lock()
	req := r.active[r.latest[lane]]
	r.mu.Unlock()
	if req == nil {
		return false
	}
	req.controller.Abort(reason)
	return true
}

// cancelAll aborts every active request.
func (r *requests) cancelAll(reason error) {
	r.mu.Lock()
	all := make([]*Request, 0, len(r.active))
	for _, req := range r.active {
		all = append(all, req)
	}
	r.mu.Unlock()
	for _, req := range all {
		req.controller.Abort(reason)
	}
}

// inFlight reports whether lane has a running request.
func (r *requests) inFlight(lane string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.latest[lane]
	return ok
}

// list returns copies of the active requests, oldest first.
func (r *requests) list() []Request {
	r.mu.Lock()
	out := make([]Request, 0, len(r.active))
	for _, req := range r.active {
		out = append(out, Request{ID: req.ID, Action: req.Action, Key: req.Key, StartedAt: req.StartedAt})
	}
	r.mu.Unlock()
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *requests) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
