// Package config resolves cross-cutting options through the precedence chain
// call-site > driver > global > default, and holds the explicit configuration
// context created at application bootstrap.
package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/core"
)

// Defaults applied when no level defines an option.
const (
	DefaultThrow              = false
	DefaultNotifyOnError      = false
	DefaultAutoUpdateDebounce = 150 * time.Millisecond
)

// Settings is one level of the precedence chain. Nil fields and absent map
// entries are undefined at this level.
type Settings struct {
	Throw              *bool
	NotifyOnError      map[core.Action]bool
	RecordsPerPage     *int
	AutoUpdateDebounce *time.Duration
}

// Notification is handed to error notifiers.
type Notification struct {
	Model            *core.Model
	Action           core.Action
	Driver           string
	StandardErrors   []core.StandardError
	ValidationErrors core.ValidationErrors
}

// Notifier is an error notification callback. It is a side effect only.
type Notifier func(Notification)

type namedScope struct {
	name  string
	scope core.Scope
}

// Context is the configuration context of one application instance.
// Create it with New at bootstrap and Reset it between test cases.
type Context struct {
	mu            sync.RWMutex
	global        Settings
	drivers       map[string]Settings
	defaultDriver func() string
	scopes        []namedScope
	entityScopes  map[string][]namedScope
	named         []namedScope
	notifiers     map[core.Action]Notifier
	logger        *slog.Logger
}

// New creates an empty configuration context.
func New() *Context {
	c := &Context{}
	c.Reset()
	return c
}

// Reset restores the context to its freshly created state.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = Settings{}
	c.drivers = make(map[string]Settings)
	c.defaultDriver = nil
	c.scopes = nil
	c.entityScopes = make(map[string][]namedScope)
	c.named = nil
	c.notifiers = make(map[core.Action]Notifier)
}

// SetLogger sets the logger used by components reading this context.
func (c *Context) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Logger returns the configured logger, possibly nil.
func (c *Context) Logger() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetGlobal replaces the global settings level.
func (c *Context) SetGlobal(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = s
}

// UpdateGlobal mutates the global settings level in place.
func (c *Context) UpdateGlobal(fn func(*Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.global)
}

// SetDriver replaces the settings level of one driver.
func (c *Context) SetDriver(name string, s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drivers[name] = s
}

// SetDefaultDriver sets the driver used when a call names none.
func (c *Context) SetDefaultDriver(name string) {
	c.SetDefaultDriverFunc(func() string { return name })
}

// SetDefaultDriverFunc sets a getter evaluated on every call.
func (c *Context) SetDefaultDriverFunc(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultDriver = fn
}

// DefaultDriver returns the current default driver key, or "".
func (c *Context) DefaultDriver() string {
	c.mu.RLock()
	fn := c.defaultDriver
	c.mu.RUnlock()
	if fn == nil {
		return ""
	}
	return fn()
}

// AddScope declares a global scope, applied to every call unless the call
// opts out. Declaration order is kept.
func (c *Context) AddScope(name string, s core.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes = upsertScope(c.scopes, name, s)
}

// AddEntityScope declares a scope applied to every call on entity.
func (c *Context) AddEntityScope(entity, name string, s core.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entityScopes[entity] = upsertScope(c.entityScopes[entity], name, s)
}

// AddNamedScope declares a scope that only applies when a call requests it.
func (c *Context) AddNamedScope(name string, s core.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.named = upsertScope(c.named, name, s)
}

// NamedScope looks up a scope declared with AddNamedScope.
func (c *Context) NamedScope(name string) (core.Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.named, name)
}

// ScopeNames returns the global scope names in declaration order.
func (c *Context) ScopeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return names(c.scopes)
}

// EntityScopeNames returns the entity scope names in declaration order.
func (c *Context) EntityScopeNames(entity string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return names(c.entityScopes[entity])
}

// Scope looks up a global scope.
func (c *Context) Scope(name string) (core.Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.scopes, name)
}

// EntityScope looks up an entity scope.
func (c *Context) EntityScope(entity, name string) (core.Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.entityScopes[entity], name)
}

// OnError registers the error notifier of an action.
func (c *Context) OnError(action core.Action, fn Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifiers[action] = fn
}

// Notifier returns the error notifier registered for action.
func (c *Context) Notifier(action core.Action) Notifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifiers[action]
}

func upsertScope(list []namedScope, name string, s core.Scope) []namedScope {
	for i := range list {
		if list[i].name == name {
			list[i].scope = s
			return list
		}
	}
	return append(list, namedScope{name: name, scope: s})
}

func lookup(list []namedScope, name string) (core.Scope, bool) {
	for _, ns := range list {
		if ns.name == name {
			return ns.scope, true
		}
	}
	return nil, false
}

func names(list []namedScope) []string {
	out := make([]string, len(list))
	for i, ns := range list {
		out[i] = ns.name
	}
	return out
}
