package core

// Record is a flat attribute map for one resource, optionally carrying hydrated
// relations under their relation names.
type Record map[string]any

// Form is a partial record supplied by a caller for create or update.
// Omitted fields are left untouched on update.
type Form map[string]any

// Clone returns a copy of the record. Hydrated relations are copied one level deep.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch x := v.(type) {
		case Record:
			out[k] = x.Clone()
		case []Record:
			cp := make([]Record, len(x))
			for i, rec := range x {
				cp[i] = rec.Clone()
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// Merge returns a clone of r with every field of f applied over it.
func (r Record) Merge(f Form) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(f))
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Without returns a clone of r without the given fields.
func (r Record) Without(fields ...string) Record {
	out := r.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Clone returns a shallow copy of the form.
func (f Form) Clone() Form {
	if f == nil {
		return nil
	}
	out := make(Form, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Ptr returns a pointer to v. Handy for optional settings.
func Ptr[T any](v T) *T {
	return &v
}
