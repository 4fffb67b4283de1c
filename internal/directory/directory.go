// Package directory defines the chat-identity capability: resolving a
// tracking-system email to a chat identity, and delivering text to it.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound reports that the directory has no chat identity for an email.
// A miss skips that one recipient; it never aborts a delivery batch.
var ErrNotFound = errors.New("chat identity not found")

// Directory is implemented by chat backends (Slack, Telegram roster).
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (string, error)
	Send(ctx context.Context, chatID string, text string) error
}
