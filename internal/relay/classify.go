package relay

// Category is the semantic class of an inbound event.
type Category int

const (
	CategoryShotStatus Category = iota
	CategoryAssetStatus
	CategoryNoteCreated
	CategoryReplyCreated
	CategoryTaskAssignment
)

func (c Category) String() string {
	switch c {
	case CategoryShotStatus:
		return "shot_status"
	case CategoryAssetStatus:
		return "asset_status"
	case CategoryNoteCreated:
		return "note_created"
	case CategoryReplyCreated:
		return "reply_created"
	case CategoryTaskAssignment:
		return "task_assignment"
	default:
		return "unknown"
	}
}

// rule is one exact-match predicate on the (entity, event, operation) triple.
// An empty constraint matches anything. Rules are mutually exclusive on
// entity type, so declaration order carries no priority.
type rule struct {
	entity    string
	eventType string
	operation string
	category  Category
}

var classifyRules = []rule{
	{entity: "Shot", category: CategoryShotStatus},
	{entity: "Asset", category: CategoryAssetStatus},
	{entity: "Note", eventType: "Shotgun_Note_New", operation: "create", category: CategoryNoteCreated},
	{entity: "Reply", eventType: "Shotgun_Reply_New", operation: "create", category: CategoryReplyCreated},
	{entity: "Task", eventType: "Shotgun_Task_Change", operation: "update", category: CategoryTaskAssignment},
}

// Classify dispatches an envelope to its category.
// A non-match is ErrUnsupported: the caller rejects without side effects.
func Classify(env Envelope) (Category, error) {
	for _, r := range classifyRules {
		if r.entity != env.EntityType {
			continue
		}
		if r.eventType != "" && r.eventType != env.EventType {
			continue
		}
		if r.operation != "" && r.operation != env.Operation {
			continue
		}
		return r.category, nil
	}
	return 0, ErrUnsupported
}
