package core

import "context"

// Feature is a stable capability key a driver may or may not support.
type Feature string

const (
	FeatureFindWith          Feature = "find.with"
	FeatureFindFilterNested  Feature = "find.filter.nested"
	FeatureFindOrderNested   Feature = "find.order.nested"
	FeatureIndexFilter       Feature = "index.filter"
	FeatureIndexFilterNested Feature = "index.filter.nested"
	FeatureIndexOrder        Feature = "index.order"
	FeatureIndexOrderNested  Feature = "index.order.nested"
	FeatureIndexWith         Feature = "index.with"
	FeatureIndexPagination   Feature = "index.pagination"
)

// Features declares which optional capabilities a driver supports.
type Features map[Feature]bool

// AllFeatures returns a set with every known capability enabled.
func AllFeatures() Features {
	return Features{
		FeatureFindWith: true, FeatureFindFilterNested: true, FeatureFindOrderNested: true,
		FeatureIndexFilter: true, FeatureIndexFilterNested: true, FeatureIndexOrder: true,
		FeatureIndexOrderNested: true, FeatureIndexWith: true, FeatureIndexPagination: true,
	}
}

// Supports reports whether f is enabled.
func (fs Features) Supports(f Feature) bool {
	return fs[f]
}

// Without returns a copy of fs with the given capabilities disabled.
func (fs Features) Without(off ...Feature) Features {
	out := make(Features, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	for _, f := range off {
		out[f] = false
	}
	return out
}

// DriverOptions is the normalized options bag handed to drivers. Scopes and
// configuration are already merged into it.
type DriverOptions struct {
	Filters          Filters
	With             With
	OrderBy          OrderBy
	Pagination       *Pagination
	Signal           *Signal
	WithoutDetaching bool
}

// IndexResult is the payload of Driver.Index.
type IndexResult struct {
	Records    []Record
	Pagination *Pagination
}

// Driver is the contract every backend implements. ctx is cancelled when the
// caller's signal aborts; drivers should abandon work promptly but correctness
// does not depend on it.
type Driver interface {
	Index(ctx context.Context, m *Model, opts DriverOptions) (IndexResult, error)
	Create(ctx context.Context, m *Model, form Form, opts DriverOptions) (Record, error)
	Update(ctx context.Context, m *Model, id string, form Form, opts DriverOptions) (Record, error)
	Destroy(ctx context.Context, m *Model, id string, opts DriverOptions) (Record, error)
	Find(ctx context.Context, m *Model, id string, opts DriverOptions) (Record, error)
	BulkUpdate(ctx context.Context, m *Model, forms map[string]Form, opts DriverOptions) ([]Record, error)
	Sync(ctx context.Context, m *Model, id, relation string, forms map[string]Form, opts DriverOptions) (SyncResult, error)
	Features() Features
}
