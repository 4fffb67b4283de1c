package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"shotrelay/internal/tracking"
)

// Envelope is one inbound change event, immutable for the life of a request.
type Envelope struct {
	EntityType string
	EntityID   int64
	EventType  string
	Operation  string

	// Attribute change payload (status changes).
	Attribute string
	OldValue  string
	NewValue  string

	// Multi-entity diff payload (assignment changes).
	Added   []tracking.EntityRef
	Removed []tracking.EntityRef
}

// Wire shape: {"data": {"meta": {...}, "operation": ..., "event_type": ...}}.
type wireEnvelope struct {
	Data struct {
		Meta struct {
			EntityType string    `json:"entity_type"`
			EntityID   int64     `json:"entity_id"`
			Attribute  string    `json:"attribute_name"`
			OldValue   any       `json:"old_value"`
			NewValue   any       `json:"new_value"`
			Added      []wireRef `json:"added"`
			Removed    []wireRef `json:"removed"`
		} `json:"meta"`
		Operation string `json:"operation"`
		EventType string `json:"event_type"`
	} `json:"data"`
}

type wireRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ParseEnvelope decodes and validates a webhook body.
// Any failure is ErrMalformed; malformed envelopes are rejected, not retried.
func ParseEnvelope(body []byte) (Envelope, error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := w.Data.Meta
	if m.EntityType == "" {
		return Envelope{}, fmt.Errorf("%w: missing entity_type", ErrMalformed)
	}
	if m.EntityID <= 0 {
		return Envelope{}, fmt.Errorf("%w: missing entity_id", ErrMalformed)
	}

	return Envelope{
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		EventType:  w.Data.EventType,
		Operation:  w.Data.Operation,
		Attribute:  m.Attribute,
		OldValue:   stringValue(m.OldValue),
		NewValue:   stringValue(m.NewValue),
		Added:      toRefs(m.Added),
		Removed:    toRefs(m.Removed),
	}, nil
}

// Ref returns the envelope's entity as a typed pointer.
func (e Envelope) Ref() tracking.EntityRef {
	return tracking.EntityRef{Type: tracking.Kind(e.EntityType), ID: e.EntityID}
}

func toRefs(ws []wireRef) []tracking.EntityRef {
	if len(ws) == 0 {
		return nil
	}
	out := make([]tracking.EntityRef, 0, len(ws))
	for _, w := range ws {
		out = append(out, tracking.EntityRef{Type: tracking.Kind(w.Type), ID: w.ID, Name: w.Name})
	}
	return out
}

// stringValue renders an attribute value for display. Status codes arrive as
// strings; anything else is formatted best-effort.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
