package fs

import (
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/core"
)

// debouncer coalesces bursts of events on the same record. A create followed
// by modifications is reported as a single create.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]core.Event
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]core.Event),
	}
}

func (d *debouncer) add(e core.Event, emit func(core.Event)) {
	id := e.Entity + "/" + e.ID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[id]; ok && prev.Type == core.EventCreate && e.Type == core.EventModify {
		e.Type = core.EventCreate
	}
	d.pending[id] = e

	if t, ok := d.timers[id]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	d.timers[id] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		ev, ok := d.pending[id]
		delete(d.pending, id)
		delete(d.timers, id)
		d.mu.Unlock()
		if ok {
			emit(ev)
		}
	})
}

// stopAndWait refuses new events and waits for scheduled ones to fire.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
