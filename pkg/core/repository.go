package core

import "context"

// Repository is the storage contract local drivers run against. Adhering to it
// keeps the CRUD logic independent of where records live (memory, files, ...).
// Keys are canonical key strings as produced by KeyOf.
type Repository interface {
	// Save persists a record. It creates if not exists, or replaces if it does.
	Save(ctx context.Context, m *Model, key string, rec Record) error

	// Get retrieves a record by key. Missing records yield ErrNotFound.
	Get(ctx context.Context, m *Model, key string) (Record, error)

	// List returns every record of the model's entity.
	List(ctx context.Context, m *Model) ([]Record, error)

	// Delete removes a record by key. Missing records yield ErrNotFound.
	Delete(ctx context.Context, m *Model, key string) error

	// Initialize ensures the underlying storage is ready.
	Initialize(ctx context.Context) error
}

// Transaction defines the contract for a unit of work.
type Transaction interface {
	Save(ctx context.Context, m *Model, key string, rec Record) error
	Get(ctx context.Context, m *Model, key string) (Record, error)
	Delete(ctx context.Context, m *Model, key string) error

	// Commit applies all staged changes.
	Commit(ctx context.Context) error

	// Rollback discards all staged changes.
	Rollback(ctx context.Context) error
}

// Transactional is implemented by repositories able to stage writes.
type Transactional interface {
	Repository
	Begin(ctx context.Context) (Transaction, error)
}

// Watchable is implemented by repositories able to report external changes.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}
