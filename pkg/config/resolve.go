package config

import (
	"time"

	"github.com/aretw0/strata/pkg/core"
)

// First returns the first defined level, or def when none is.
// Levels are given from highest to lowest precedence.
func First[T any](def T, levels ...*T) T {
	for _, l := range levels {
		if l != nil {
			return *l
		}
	}
	return def
}

func (c *Context) levels(driver string) (Settings, Settings) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.drivers[driver], c.global
}

// Throw resolves whether failures are returned through the error value.
func (c *Context) Throw(driver string, call *bool) bool {
	d, g := c.levels(driver)
	return First(DefaultThrow, call, d.Throw, g.Throw)
}

// NotifyOnError resolves whether the action's error notifier fires. Each action
// flag resolves on its own: the first level defining that flag wins.
func (c *Context) NotifyOnError(driver string, action core.Action, call *bool) bool {
	d, g := c.levels(driver)
	return First(DefaultNotifyOnError, call, flag(d.NotifyOnError, action), flag(g.NotifyOnError, action))
}

// RecordsPerPage resolves the page size. Zero means unpaginated.
func (c *Context) RecordsPerPage(driver string, call *int) int {
	d, g := c.levels(driver)
	return First(0, call, d.RecordsPerPage, g.RecordsPerPage)
}

// AutoUpdateDebounce resolves the auto-update debounce window.
func (c *Context) AutoUpdateDebounce(driver string, call *time.Duration) time.Duration {
	d, g := c.levels(driver)
	return First(DefaultAutoUpdateDebounce, call, d.AutoUpdateDebounce, g.AutoUpdateDebounce)
}

func flag(m map[core.Action]bool, action core.Action) *bool {
	v, ok := m[action]
	if !ok {
		return nil
	}
	return &v
}
