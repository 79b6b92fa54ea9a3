package local

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/aretw0/strata/pkg/core"
)

// Sync implements core.Driver for belongsToMany relations. forms is keyed by
// related id; each form holds the pivot attributes to store. Pivots of the
// owner whose related id is absent from forms are detached unless
// WithoutDetaching is set.
func (d *Driver) Sync(ctx context.Context, m *core.Model, id, relation string, forms map[string]core.Form, opts core.DriverOptions) (core.SyncResult, error) {
	result := core.SyncResult{Attached: []string{}, Detached: []string{}, Updated: []string{}}
	if err := d.begin(ctx); err != nil {
		return result, err
	}
	related, rel, err := d.config.Schema.Related(m, relation)
	if err != nil {
		return result, err
	}
	if rel.Kind != core.BelongsToMany {
		return result, fmt.Errorf("%w: %s.%s is not belongsToMany", core.ErrUnknownRelation, m.Entity, relation)
	}
	rel = rel.Resolved(m, related)
	pivot, ok := d.config.Schema.Model(rel.Pivot)
	if !ok {
		return result, fmt.Errorf("%w: pivot %q of %s.%s", core.ErrUnknownModel, rel.Pivot, m.Entity, relation)
	}

	owner, err := d.get(ctx, m, id)
	if err != nil {
		return result, err
	}
	ownerValue := owner[rel.OwnerKey]

	targets := make(map[string]core.Record, len(forms))
	for relatedID := range forms {
		rec, err := d.get(ctx, related, relatedID)
		if err != nil {
			return result, err
		}
		targets[relatedID] = rec
	}

	all, err := d.repo.List(ctx, pivot)
	if err != nil {
		return result, err
	}
	current := make(map[string]core.Record)
	for _, p := range all {
		if core.Stringify(p[rel.ForeignPivotKey]) != core.Stringify(ownerValue) {
			continue
		}
		current[core.Stringify(p[rel.RelatedPivotKey])] = p
	}

	for _, relatedID := range sortedKeys(forms) {
		form := forms[relatedID]
		existing, linked := current[relatedID]
		if !linked {
			rec := core.Record(form.Clone())
			if rec == nil {
				rec = core.Record{}
			}
			rec[rel.ForeignPivotKey] = ownerValue
			rec[rel.RelatedPivotKey] = targets[relatedID][related.PrimaryKey[0]]
			if err := d.savePivot(ctx, pivot, rec); err != nil {
				return result, err
			}
			result.Attached = append(result.Attached, relatedID)
			continue
		}
		if !changed(existing, form) {
			continue
		}
		merged := existing.Merge(form)
		merged[rel.ForeignPivotKey] = existing[rel.ForeignPivotKey]
		merged[rel.RelatedPivotKey] = existing[rel.RelatedPivotKey]
		if err := d.savePivot(ctx, pivot, merged); err != nil {
			return result, err
		}
		result.Updated = append(result.Updated, relatedID)
	}

	if !opts.WithoutDetaching {
		for _, relatedID := range sortedKeys(current) {
			if _, keep := forms[relatedID]; keep {
				continue
			}
			key, err := core.KeyOf(pivot, current[relatedID])
			if err != nil {
				return result, err
			}
			if err := d.repo.Delete(ctx, pivot, key); err != nil {
				return result, err
			}
			result.Detached = append(result.Detached, relatedID)
		}
	}

	if d.config.Logger != nil {
		d.config.Logger.Debug("relation synced",
			"driver", d.config.Name, "entity", m.Entity, "id", id, "relation", relation,
			"attached", len(result.Attached), "detached", len(result.Detached), "updated", len(result.Updated))
	}
	return result, nil
}

func (d *Driver) savePivot(ctx context.Context, pivot *core.Model, rec core.Record) error {
	if !pivot.Composite() {
		if v, ok := rec[pivot.PrimaryKey[0]]; !ok || v == nil || v == "" {
			rec[pivot.PrimaryKey[0]] = d.config.KeyGen()
		}
	}
	key, err := core.KeyOf(pivot, rec)
	if err != nil {
		return err
	}
	return d.repo.Save(ctx, pivot, key, rec)
}

func changed(existing core.Record, form core.Form) bool {
	for k, v := range form {
		if !reflect.DeepEqual(existing[k], v) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
