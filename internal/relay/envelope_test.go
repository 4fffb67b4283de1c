package relay

import (
	"errors"
	"testing"

	"shotrelay/internal/tracking"
)

func TestParseEnvelopeStatusChange(t *testing.T) {
	t.Parallel()
	body := []byte(`{
		"data": {
			"event_type": "Shotgun_Shot_Change",
			"operation": "update",
			"meta": {
				"entity_type": "Shot",
				"entity_id": 20,
				"attribute_name": "sg_status_list",
				"old_value": "ip",
				"new_value": "fin"
			}
		}
	}`)

	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope error: %v", err)
	}
	want := Envelope{
		EntityType: "Shot",
		EntityID:   20,
		EventType:  "Shotgun_Shot_Change",
		Operation:  "update",
		Attribute:  "sg_status_list",
		OldValue:   "ip",
		NewValue:   "fin",
	}
	if env.EntityType != want.EntityType || env.EntityID != want.EntityID ||
		env.EventType != want.EventType || env.Operation != want.Operation ||
		env.Attribute != want.Attribute || env.OldValue != want.OldValue ||
		env.NewValue != want.NewValue {
		t.Fatalf("envelope = %+v, want %+v", env, want)
	}
}

func TestParseEnvelopeAssignmentDiff(t *testing.T) {
	t.Parallel()
	body := []byte(`{
		"data": {
			"event_type": "Shotgun_Task_Change",
			"operation": "update",
			"meta": {
				"entity_type": "Task",
				"entity_id": 55,
				"attribute_name": "task_assignees",
				"added": [{"type": "HumanUser", "id": 7, "name": "Seven"}],
				"removed": [{"type": "HumanUser", "id": 8}]
			}
		}
	}`)

	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope error: %v", err)
	}
	if len(env.Added) != 1 || env.Added[0] != (tracking.EntityRef{Type: "HumanUser", ID: 7, Name: "Seven"}) {
		t.Fatalf("added = %+v", env.Added)
	}
	if len(env.Removed) != 1 || env.Removed[0].ID != 8 {
		t.Fatalf("removed = %+v", env.Removed)
	}
}

func TestParseEnvelopeNonStringValues(t *testing.T) {
	t.Parallel()
	body := []byte(`{
		"data": {
			"event_type": "Shotgun_Shot_Change",
			"operation": "update",
			"meta": {"entity_type": "Shot", "entity_id": 20, "old_value": 3, "new_value": null}
		}
	}`)

	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope error: %v", err)
	}
	if env.OldValue != "3" || env.NewValue != "" {
		t.Fatalf("values = %q / %q", env.OldValue, env.NewValue)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"empty object", `{}`},
		{"missing entity type", `{"data":{"meta":{"entity_id":20}}}`},
		{"zero entity id", `{"data":{"meta":{"entity_type":"Shot","entity_id":0}}}`},
		{"negative entity id", `{"data":{"meta":{"entity_type":"Shot","entity_id":-4}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseEnvelope([]byte(tc.body)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}
