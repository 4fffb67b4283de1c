package relay

import "fmt"

// Message composition. All bodies are plain text; one body is composed per
// event and shared by every recipient in a step group. The Context prefix is
// prepended per step at delivery time.

// ComposeStatusChange renders a status transition using the domain's
// description table. Unmapped codes render as-is.
func ComposeStatusChange(domain StatusDomain, oldCode, newCode string) string {
	kind := "shot"
	if domain == StatusDomainAsset {
		kind = "asset"
	}
	return fmt.Sprintf("A %s status has been changed from '%s' to '%s'.",
		kind, StatusLabel(domain, oldCode), StatusLabel(domain, newCode))
}

// ComposeNote renders a new-note body. frameURL is optional; when present the
// first resolvable attachment is advertised as an annotated frame.
func ComposeNote(authorName, content, frameURL string) string {
	body := fmt.Sprintf("%s added a note:\n%s", authorName, content)
	if frameURL != "" {
		body += "\nAnnotated Frame: " + frameURL
	}
	return body
}

// ComposeReply renders a new-reply body including the parent note's content.
func ComposeReply(replyContent, noteContent string) string {
	return fmt.Sprintf("A new Reply has been created:\n%s\nRelated Note: %s", replyContent, noteContent)
}

// ComposeAssignment renders the per-user task assignment body, Context
// prefix included (assignment messages are per-user, not grouped by step).
func ComposeAssignment(c Context, added bool) string {
	action := "removed from"
	if added {
		action = "assigned to"
	}
	return c.Prefix(c.Step) + fmt.Sprintf("You have been %s a task.", action)
}
