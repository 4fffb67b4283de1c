package relay

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"shotrelay/internal/tracking"
	logx "shotrelay/pkg/logx"
)

func testResolver(src *fakeSource) *Resolver {
	return NewResolver(src, logx.Nop())
}

func sortedSet(rs RecipientSet) RecipientSet {
	out := RecipientSet{}
	for step, emails := range rs {
		cp := append([]string(nil), emails...)
		sort.Strings(cp)
		out[step] = cp
	}
	return out
}

func TestResolveShotGroupsByStep(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedShotFixture(src)
	src.putTasks(tracking.KindShot, 20,
		tracking.Record{
			"task_assignees": []any{
				map[string]any{"type": "HumanUser", "id": float64(7)},
				map[string]any{"type": "HumanUser", "id": float64(8)},
			},
			"step.Step.short_name": "anim",
		},
		tracking.Record{
			"task_assignees":       []any{map[string]any{"type": "HumanUser", "id": float64(7)}},
			"step.Step.short_name": "comp",
		},
		tracking.Record{
			// Unassigned tasks contribute no entries.
			"task_assignees":       []any{},
			"step.Step.short_name": "light",
		},
	)
	src.put(tracking.KindHumanUser, 8, tracking.Record{"email": "eight@studio.test"})

	rs, c, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindShot, ID: 20})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	want := RecipientSet{
		"anim": {"eight@studio.test", "seven@studio.test"},
		"comp": {"seven@studio.test"},
	}
	if !reflect.DeepEqual(sortedSet(rs), want) {
		t.Fatalf("recipients = %v, want %v", rs, want)
	}
	if c.Project != "Atlas" || c.Sequence != "SQ010" || c.Entity != "SH020" {
		t.Fatalf("context = %+v", c)
	}
	if _, ok := rs["light"]; ok {
		t.Fatal("step with zero resolved emails must be omitted")
	}
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedShotFixture(src)
	r := testResolver(src)

	ref := tracking.EntityRef{Type: tracking.KindShot, ID: 20}
	rs1, c1, err1 := r.Resolve(context.Background(), ref)
	rs2, c2, err2 := r.Resolve(context.Background(), ref)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v / %v", err1, err2)
	}
	if !reflect.DeepEqual(sortedSet(rs1), sortedSet(rs2)) || c1 != c2 {
		t.Fatalf("resolution not idempotent: %v/%v vs %v/%v", rs1, c1, rs2, c2)
	}
}

func TestResolveShotMissing(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	_, _, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindShot, ID: 99})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveAssetDefaults(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	// Asset record with every display field missing.
	src.put(tracking.KindAsset, 4, tracking.Record{})

	rs, c, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindAsset, ID: 4})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !rs.Empty() {
		t.Fatalf("recipients = %v, want empty", rs)
	}
	if c.Project != "Unknown Project" || c.Sequence != "N/A" || c.Entity != "Unknown Asset" {
		t.Fatalf("context = %+v", c)
	}
}

func TestResolveVersionWithoutShot(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.put(tracking.KindVersion, 31, tracking.Record{
		"code":                 "v031",
		"project.Project.name": "Atlas",
	})

	rs, c, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindVersion, ID: 31})
	if err != nil {
		// An unlinked version is a valid no-recipients outcome, not a failure.
		t.Fatalf("Resolve error: %v", err)
	}
	if !rs.Empty() {
		t.Fatalf("recipients = %v, want empty", rs)
	}
	if c.Entity != "v031" || c.Sequence != "N/A" || c.Project != "Atlas" {
		t.Fatalf("context = %+v", c)
	}
}

func TestResolveVersionDelegatesToShot(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedShotFixture(src)
	src.put(tracking.KindVersion, 31, tracking.Record{
		"code":                 "v031",
		"project.Project.name": "Atlas",
		"sg_shot":              map[string]any{"type": "Shot", "id": float64(20)},
	})

	rs, c, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindVersion, ID: 31})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(rs["anim"]) != 1 || rs["anim"][0] != "seven@studio.test" {
		t.Fatalf("recipients = %v", rs)
	}
	// The version name is the display entity even though the walk used the shot.
	if c.Entity != "v031" {
		t.Fatalf("entity = %q, want v031", c.Entity)
	}
}

func TestResolveNoteFollowsFirstLink(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	seedShotFixture(src)
	src.put(tracking.KindNote, 12, tracking.Record{
		"note_links": []any{
			map[string]any{"type": "Shot", "id": float64(20)},
			map[string]any{"type": "Asset", "id": float64(999)}, // ignored: first link wins
		},
	})

	rs, _, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindNote, ID: 12})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(rs["anim"]) != 1 {
		t.Fatalf("recipients = %v", rs)
	}
}

func TestResolveNoteWithoutLinks(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.put(tracking.KindNote, 12, tracking.Record{"note_links": []any{}})

	rs, _, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindNote, ID: 12})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !rs.Empty() {
		t.Fatalf("recipients = %v, want empty", rs)
	}
}

func TestResolveUnsupportedLinkKind(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	src.put(tracking.KindNote, 12, tracking.Record{
		"note_links": []any{map[string]any{"type": "Sequence", "id": float64(3)}},
	})

	_, _, err := testResolver(src).Resolve(context.Background(), tracking.EntityRef{Type: tracking.KindNote, ID: 12})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
