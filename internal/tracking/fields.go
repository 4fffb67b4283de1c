package tracking

// Field is a typed field selector. Dotted names denote cross-entity joins
// resolved server-side by the tracking source (e.g. "project.Project.name"
// follows the project link and reads the Project's name).
//
// Keeping these as named constants (instead of raw strings at call sites)
// means a typo is a compile error, not a silent empty field.
type Field string

const (
	FieldID Field = "id"

	// Shared across Shot/Asset/Version.
	FieldCode        Field = "code"
	FieldProjectName Field = "project.Project.name"

	// Shot.
	FieldShotSequence Field = "sg_sequence.Sequence.code"

	// Version.
	FieldVersionShot Field = "sg_shot"

	// Task.
	FieldTaskEntity    Field = "entity"
	FieldTaskAssignees Field = "task_assignees"
	FieldTaskStep      Field = "step.Step.short_name"

	// HumanUser.
	FieldUserEmail Field = "email"

	// Note.
	FieldNoteContent     Field = "content"
	FieldNoteLinks       Field = "note_links"
	FieldNoteAttachments Field = "attachments"
	FieldNoteAuthorEmail Field = "created_by.HumanUser.email"
	FieldNoteAuthorName  Field = "created_by.HumanUser.name"

	// Reply.
	FieldReplyContent     Field = "content"
	FieldReplyNoteContent Field = "note.Note.content"
	FieldReplyNoteLinks   Field = "note.Note.note_links"
	FieldReplyAuthorEmail Field = "created_by.HumanUser.email"

	// Attachment.
	FieldAttachmentFile Field = "this_file"
)

// FieldNames flattens selectors to their wire names.
func FieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
