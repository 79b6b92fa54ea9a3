// Package lifecycle exposes record change events as lifecycle sources, so
// they can feed a lifecycle router or any other consumer of lifecycle.Event.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/store"
)

// subscribeFunc opens the underlying event channel once the source starts.
// The returned func releases it.
type subscribeFunc func(ctx context.Context) (<-chan core.Event, func(), error)

type eventSource struct {
	subscribe subscribeFunc
	out       chan lifecycle.Event
}

// NewSource bridges an existing event channel.
func NewSource(events <-chan core.Event) lifecycle.Source {
	return newEventSource(func(context.Context) (<-chan core.Event, func(), error) {
		return events, func() {}, nil
	})
}

// NewWatchSource watches repo for changes matching pattern once started. The
// watch ends with the context given to Start.
func NewWatchSource(repo core.Watchable, pattern string) lifecycle.Source {
	return newEventSource(func(ctx context.Context) (<-chan core.Event, func(), error) {
		events, err := repo.Watch(ctx, pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("watch %q: %w", pattern, err)
		}
		return events, func() {}, nil
	})
}

// NewStoreSource emits every change applied to s. buffer bounds the events
// held for a slow consumer; further events are dropped.
func NewStoreSource(s *store.Store, buffer int) lifecycle.Source {
	return newEventSource(func(context.Context) (<-chan core.Event, func(), error) {
		events, unsubscribe := s.Subscribe(buffer)
		return events, unsubscribe, nil
	})
}

func newEventSource(subscribe subscribeFunc) *eventSource {
	return &eventSource{
		subscribe: subscribe,
		out:       make(chan lifecycle.Event),
	}
}

func (s *eventSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start opens the subscription and forwards events until ctx is done or the
// upstream channel closes. Events closes afterwards.
func (s *eventSource) Start(ctx context.Context) error {
	events, release, err := s.subscribe(ctx)
	if err != nil {
		return err
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		defer release()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// core.Event satisfies lifecycle.Event through String.
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
