// Package core holds the domain types shared by every layer: model descriptors,
// the declarative query vocabulary, the Response envelope and the Driver contract.
package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RelationKind names how two models are linked.
type RelationKind string

const (
	HasOne        RelationKind = "hasOne"
	HasMany       RelationKind = "hasMany"
	BelongsTo     RelationKind = "belongsTo"
	BelongsToMany RelationKind = "belongsToMany"
)

// Relation describes how a model reaches its related records.
//
// For hasOne/hasMany, ForeignKey lives on the related record and points at the
// owner's OwnerKey. For belongsTo, ForeignKey lives on the owner and points at the
// related record's OwnerKey. For belongsToMany, records are linked through the Pivot
// entity using ForeignPivotKey (owner side) and RelatedPivotKey (related side).
type Relation struct {
	Name            string
	Kind            RelationKind
	Related         string
	ForeignKey      string
	OwnerKey        string
	Pivot           string
	ForeignPivotKey string
	RelatedPivotKey string
}

// Many reports whether the relation resolves to a collection.
func (r Relation) Many() bool {
	return r.Kind == HasMany || r.Kind == BelongsToMany
}

// Model is the descriptor of a resource type.
// It is immutable once registered in a Schema.
type Model struct {
	Entity     string
	PrimaryKey []string
	APIEntity  string
	Attributes []string
	Relations  map[string]Relation
}

// Endpoint returns the name used by remote drivers.
func (m *Model) Endpoint() string {
	if m.APIEntity != "" {
		return m.APIEntity
	}
	return m.Entity
}

// Composite reports whether the primary key spans several fields.
func (m *Model) Composite() bool {
	return len(m.PrimaryKey) > 1
}

// HasAttribute reports whether name is a declared scalar attribute.
// Models without declared attributes accept any non-relation field.
func (m *Model) HasAttribute(name string) bool {
	if _, ok := m.Relations[name]; ok {
		return false
	}
	if len(m.Attributes) == 0 {
		return true
	}
	for _, a := range m.Attributes {
		if a == name {
			return true
		}
	}
	for _, k := range m.PrimaryKey {
		if k == name {
			return true
		}
	}
	return false
}

// Relation looks up a relationship by name.
func (m *Model) Relation(name string) (Relation, bool) {
	r, ok := m.Relations[name]
	return r, ok
}

// Schema is the declarative registry of models, built once at startup.
type Schema struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewSchema creates a schema holding the given models.
// It panics on invalid descriptors, as schemas are static program data.
func NewSchema(models ...*Model) *Schema {
	s := &Schema{models: make(map[string]*Model)}
	for _, m := range models {
		if err := s.Register(m); err != nil {
			panic(err)
		}
	}
	return s
}

// Register adds a model to the schema.
func (s *Schema) Register(m *Model) error {
	if m == nil || m.Entity == "" {
		return fmt.Errorf("%w: model has no entity name", ErrUnknownModel)
	}
	if len(m.PrimaryKey) == 0 {
		m.PrimaryKey = []string{"id"}
	}
	for name, rel := range m.Relations {
		if rel.Name == "" {
			rel.Name = name
			m.Relations[name] = rel
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[m.Entity] = m
	return nil
}

// Model returns the model registered under entity.
func (s *Schema) Model(entity string) (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[entity]
	return m, ok
}

// Models returns every registered model sorted by entity.
func (s *Schema) Models() []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// Related resolves the relation named name on m together with the related model.
func (s *Schema) Related(m *Model, name string) (*Model, Relation, error) {
	rel, ok := m.Relation(name)
	if !ok {
		return nil, Relation{}, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, m.Entity, name)
	}
	related, ok := s.Model(rel.Related)
	if !ok {
		return nil, Relation{}, fmt.Errorf("%w: %q (related by %s.%s)", ErrUnknownModel, rel.Related, m.Entity, name)
	}
	return related, rel, nil
}

// Resolved returns a copy of r with conventional defaults filled in for the
// keys left empty: "<singular entity>_id" for foreign and pivot keys and the
// first primary key field for owner keys.
func (r Relation) Resolved(owner, related *Model) Relation {
	switch r.Kind {
	case HasOne, HasMany:
		if r.ForeignKey == "" {
			r.ForeignKey = singular(owner.Entity) + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.PrimaryKey[0]
		}
	case BelongsTo:
		if r.ForeignKey == "" {
			r.ForeignKey = singular(related.Entity) + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = related.PrimaryKey[0]
		}
	case BelongsToMany:
		if r.ForeignPivotKey == "" {
			r.ForeignPivotKey = singular(owner.Entity) + "_id"
		}
		if r.RelatedPivotKey == "" {
			r.RelatedPivotKey = singular(related.Entity) + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.PrimaryKey[0]
		}
	}
	return r
}

func singular(entity string) string {
	switch {
	case strings.HasSuffix(entity, "ies"):
		return strings.TrimSuffix(entity, "ies") + "y"
	case strings.HasSuffix(entity, "ses"):
		return strings.TrimSuffix(entity, "es")
	case strings.HasSuffix(entity, "s"):
		return strings.TrimSuffix(entity, "s")
	}
	return entity
}
