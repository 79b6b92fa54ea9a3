package core

// Options is the call-site options bag shared by every action.
// Nil pointers mean "not set at this level" for precedence resolution.
type Options struct {
	Filters    Filters
	With       With
	OrderBy    OrderBy
	Pagination *Pagination

	Scopes                    []ScopeRef
	WithoutGlobalScopes       []string
	WithoutEntityGlobalScopes []string

	Signal        *Signal
	Throw         *bool
	NotifyOnError *bool
	Driver        string

	// WithoutDetaching keeps relations absent from a sync payload.
	WithoutDetaching bool
}
