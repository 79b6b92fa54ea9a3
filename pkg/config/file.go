package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/pkg/core"
)

// File is the on-disk YAML configuration.
//
//	defaultDriver: local
//	throw: false
//	notifyOnError: {create: true}
//	pagination: {recordsPerPage: 20}
//	autoUpdateDebounce: 300ms
//	drivers:
//	  local: {type: memory}
//	  disk: {type: fs, path: ./data, format: yaml}
//	  api: {type: rest, baseURL: "http://localhost:8080", pagination: {recordsPerPage: 50}}
//	scopes:
//	  published: {filters: {status: {equals: published}}}
//	namedScopes:
//	  short: {filters: {title: {startsWith: a}}}
//	entityScopes:
//	  posts:
//	    latest: {orderBy: [{field: created_at, direction: descending}]}
//	entities:
//	  posts:
//	    attributes: [id, title, body, user_id]
//	    relationships:
//	      comments: {kind: hasMany, related: comments, foreignKey: post_id}
type File struct {
	DefaultDriver      string                `yaml:"defaultDriver"`
	Throw              *bool                 `yaml:"throw"`
	NotifyOnError      map[string]bool       `yaml:"notifyOnError"`
	Pagination         PaginationFile        `yaml:"pagination"`
	AutoUpdateDebounce string                `yaml:"autoUpdateDebounce"`
	Drivers            map[string]DriverFile `yaml:"drivers"`
	Scopes             yaml.Node             `yaml:"scopes"`
	NamedScopes        yaml.Node             `yaml:"namedScopes"`
	EntityScopes       map[string]yaml.Node  `yaml:"entityScopes"`
	Entities           map[string]EntityFile `yaml:"entities"`
}

// PaginationFile holds pagination defaults.
type PaginationFile struct {
	RecordsPerPage *int `yaml:"recordsPerPage"`
}

// DriverFile is one driver declaration. Type-specific keys land in Options.
type DriverFile struct {
	Type               string          `yaml:"type"`
	Throw              *bool           `yaml:"throw"`
	NotifyOnError      map[string]bool `yaml:"notifyOnError"`
	Pagination         PaginationFile  `yaml:"pagination"`
	AutoUpdateDebounce string          `yaml:"autoUpdateDebounce"`
	Options            map[string]any  `yaml:",inline"`
}

// EntityFile declares one model.
type EntityFile struct {
	PrimaryKey    KeyFields               `yaml:"primaryKey"`
	APIEntity     string                  `yaml:"apiEntity"`
	Attributes    []string                `yaml:"attributes"`
	Relationships map[string]RelationFile `yaml:"relationships"`
}

// RelationFile declares one relationship.
type RelationFile struct {
	Kind            string `yaml:"kind"`
	Related         string `yaml:"related"`
	ForeignKey      string `yaml:"foreignKey"`
	OwnerKey        string `yaml:"ownerKey"`
	Pivot           string `yaml:"pivot"`
	ForeignPivotKey string `yaml:"foreignPivotKey"`
	RelatedPivotKey string `yaml:"relatedPivotKey"`
}

// KeyFields accepts either a single field name or a list of names.
type KeyFields []string

func (k *KeyFields) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*k = KeyFields{value.Value}
		return nil
	case yaml.SequenceNode:
		var fields []string
		if err := value.Decode(&fields); err != nil {
			return err
		}
		*k = fields
		return nil
	}
	return fmt.Errorf("primaryKey must be a string or a list (line %d)", value.Line)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &f, nil
}

// Apply writes the file's settings and scopes into c.
func (f *File) Apply(c *Context) error {
	global, err := settings(f.Throw, f.NotifyOnError, f.Pagination, f.AutoUpdateDebounce)
	if err != nil {
		return fmt.Errorf("global settings: %w", err)
	}
	c.SetGlobal(global)

	for name, d := range f.Drivers {
		s, err := settings(d.Throw, d.NotifyOnError, d.Pagination, d.AutoUpdateDebounce)
		if err != nil {
			return fmt.Errorf("driver %s: %w", name, err)
		}
		c.SetDriver(name, s)
	}

	if f.DefaultDriver != "" {
		c.SetDefaultDriver(f.DefaultDriver)
	}

	scopes, err := decodeScopes(&f.Scopes)
	if err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	for _, s := range scopes {
		c.AddScope(s.name, s.scope)
	}

	named, err := decodeScopes(&f.NamedScopes)
	if err != nil {
		return fmt.Errorf("named scopes: %w", err)
	}
	for _, s := range named {
		c.AddNamedScope(s.name, s.scope)
	}

	entities := make([]string, 0, len(f.EntityScopes))
	for entity := range f.EntityScopes {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		node := f.EntityScopes[entity]
		scopes, err := decodeScopes(&node)
		if err != nil {
			return fmt.Errorf("entity scopes %s: %w", entity, err)
		}
		for _, s := range scopes {
			c.AddEntityScope(entity, s.name, s.scope)
		}
	}
	return nil
}

// Schema builds the declarative schema registry from the entities section.
func (f *File) Schema() (*core.Schema, error) {
	schema := core.NewSchema()
	for entity, e := range f.Entities {
		m := &core.Model{
			Entity:     entity,
			PrimaryKey: []string(e.PrimaryKey),
			APIEntity:  e.APIEntity,
			Attributes: e.Attributes,
			Relations:  make(map[string]core.Relation, len(e.Relationships)),
		}
		for name, r := range e.Relationships {
			kind := core.RelationKind(r.Kind)
			switch kind {
			case core.HasOne, core.HasMany, core.BelongsTo, core.BelongsToMany:
			default:
				return nil, fmt.Errorf("entity %s: relationship %s has unknown kind %q", entity, name, r.Kind)
			}
			m.Relations[name] = core.Relation{
				Name:            name,
				Kind:            kind,
				Related:         r.Related,
				ForeignKey:      r.ForeignKey,
				OwnerKey:        r.OwnerKey,
				Pivot:           r.Pivot,
				ForeignPivotKey: r.ForeignPivotKey,
				RelatedPivotKey: r.RelatedPivotKey,
			}
		}
		if err := schema.Register(m); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func settings(throw *bool, notify map[string]bool, p PaginationFile, debounce string) (Settings, error) {
	s := Settings{Throw: throw, RecordsPerPage: p.RecordsPerPage}
	if len(notify) > 0 {
		s.NotifyOnError = make(map[core.Action]bool, len(notify))
		for action, v := range notify {
			s.NotifyOnError[core.Action(action)] = v
		}
	}
	if debounce != "" {
		d, err := time.ParseDuration(debounce)
		if err != nil {
			return Settings{}, fmt.Errorf("autoUpdateDebounce: %w", err)
		}
		s.AutoUpdateDebounce = &d
	}
	return s, nil
}

// decodeScopes walks a YAML mapping node so declaration order survives.
func decodeScopes(node *yaml.Node) ([]namedScope, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping (line %d)", node.Line)
	}
	var out []namedScope
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var frag struct {
			Filters map[string]any `yaml:"filters"`
			With    map[string]any `yaml:"with"`
			OrderBy core.OrderBy   `yaml:"orderBy"`
		}
		if err := node.Content[i+1].Decode(&frag); err != nil {
			return nil, fmt.Errorf("scope %s: %w", name, err)
		}
		out = append(out, namedScope{name: name, scope: core.StaticScope{
			Filters: core.Filters(frag.Filters),
			With:    core.With(frag.With),
			OrderBy: frag.OrderBy,
		}})
	}
	return out, nil
}
