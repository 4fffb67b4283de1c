package tracking

// Record is a field-name-keyed view of one tracking-source entity.
//
// Values arrive JSON-decoded (numbers are float64, links are nested maps),
// so access goes through typed helpers instead of raw assertions at call
// sites.
type Record map[string]any

// Str returns the string value of field, or def when absent/not a string.
func (r Record) Str(field Field, def string) string {
	v, ok := r[string(field)]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// Ref returns an entity-reference field ({type, id, name?}).
func (r Record) Ref(field Field) (EntityRef, bool) {
	v, ok := r[string(field)]
	if !ok || v == nil {
		return EntityRef{}, false
	}
	return asRef(v)
}

// Refs returns a list-of-references field (e.g. note_links, task_assignees).
// Entries that don't look like references are skipped.
func (r Record) Refs(field Field) []EntityRef {
	v, ok := r[string(field)]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]EntityRef, 0, len(items))
	for _, it := range items {
		if ref, ok := asRef(it); ok {
			out = append(out, ref)
		}
	}
	return out
}

// Nested returns a nested map field (e.g. Attachment.this_file) as a Record.
func (r Record) Nested(field Field) Record {
	v, ok := r[string(field)]
	if !ok || v == nil {
		return nil
	}
	switch m := v.(type) {
	case map[string]any:
		return Record(m)
	case Record:
		return m
	}
	return nil
}

func asRef(v any) (EntityRef, bool) {
	var m map[string]any
	switch x := v.(type) {
	case map[string]any:
		m = x
	case Record:
		m = x
	case EntityRef:
		return x, true
	default:
		return EntityRef{}, false
	}

	ref := EntityRef{}
	if t, ok := m["type"].(string); ok {
		ref.Type = Kind(t)
	}
	if n, ok := m["name"].(string); ok {
		ref.Name = n
	}
	switch id := m["id"].(type) {
	case float64:
		ref.ID = int64(id)
	case int64:
		ref.ID = id
	case int:
		ref.ID = int64(id)
	default:
		return EntityRef{}, false
	}
	return ref, true
}
