package relay

import (
	"context"
	"fmt"
	"sync"

	"shotrelay/internal/directory"
	"shotrelay/internal/tracking"
)

// fakeSource is an in-memory tracking source for tests.
type fakeSource struct {
	mu           sync.Mutex
	records      map[string]tracking.Record
	tasksByOwner map[string][]tracking.Record
	err          error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:      map[string]tracking.Record{},
		tasksByOwner: map[string][]tracking.Record{},
	}
}

func recKey(kind tracking.Kind, id int64) string { return fmt.Sprintf("%s#%d", kind, id) }

func (f *fakeSource) put(kind tracking.Kind, id int64, rec tracking.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[recKey(kind, id)] = rec
}

func (f *fakeSource) putTasks(owner tracking.Kind, ownerID int64, tasks ...tracking.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasksByOwner[recKey(owner, ownerID)] = tasks
}

func (f *fakeSource) FindOne(_ context.Context, kind tracking.Kind, filters []tracking.Filter, _ []tracking.Field) (tracking.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id, ok := filterID(filters)
	if !ok {
		return nil, nil
	}
	return f.records[recKey(kind, id)], nil
}

func (f *fakeSource) Find(_ context.Context, kind tracking.Kind, filters []tracking.Filter, _ []tracking.Field) ([]tracking.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if kind != tracking.KindTask || len(filters) == 0 {
		return nil, nil
	}
	owner, ok := filters[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}
	t, _ := owner["type"].(string)
	id, _ := owner["id"].(int64)
	return f.tasksByOwner[recKey(tracking.Kind(t), id)], nil
}

func filterID(filters []tracking.Filter) (int64, bool) {
	for _, f := range filters {
		if f.Field == tracking.FieldID {
			switch v := f.Value.(type) {
			case int64:
				return v, true
			case int:
				return int64(v), true
			case float64:
				return int64(v), true
			}
		}
	}
	return 0, false
}

// fakeChat is an in-memory chat directory for tests.
type fakeChat struct {
	mu        sync.Mutex
	ids       map[string]string // email -> chat id
	failSends map[string]bool   // chat id -> force send failure
	sent      []sentMessage
}

type sentMessage struct {
	ChatID string
	Text   string
}

func newFakeChat() *fakeChat {
	return &fakeChat{ids: map[string]string{}, failSends: map[string]bool{}}
}

func (f *fakeChat) LookupByEmail(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[email]
	if !ok {
		return "", directory.ErrNotFound
	}
	return id, nil
}

func (f *fakeChat) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSends[chatID] {
		return fmt.Errorf("remote rejected send to %s", chatID)
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeChat) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Text
	}
	return out
}

// Shot 20 in project Atlas, sequence SQ010, with an anim task assigned to
// user 7. The canonical fixture most tests build on.
func seedShotFixture(src *fakeSource) {
	src.put(tracking.KindShot, 20, tracking.Record{
		"code":                      "SH020",
		"project.Project.name":      "Atlas",
		"sg_sequence.Sequence.code": "SQ010",
	})
	src.putTasks(tracking.KindShot, 20, tracking.Record{
		"task_assignees":       []any{map[string]any{"type": "HumanUser", "id": float64(7)}},
		"step.Step.short_name": "anim",
	})
	src.put(tracking.KindHumanUser, 7, tracking.Record{"email": "seven@studio.test"})
}
