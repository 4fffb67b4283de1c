// Package slackdir implements directory.Directory on the Slack Web API.
// Emails resolve to Slack user IDs; sends open a direct message.
package slackdir

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"shotrelay/internal/directory"
	logx "shotrelay/pkg/logx"
)

type Config struct {
	Token string
}

type Directory struct {
	api *slack.Client
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Directory, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("slackdir: token is empty")
	}
	return &Directory{api: slack.New(cfg.Token), log: log}, nil
}

func (d *Directory) LookupByEmail(ctx context.Context, email string) (string, error) {
	u, err := d.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		if isUserMissing(err) {
			return "", directory.ErrNotFound
		}
		return "", fmt.Errorf("slackdir: lookup %s: %w", email, err)
	}
	if u.Deleted {
		d.log.Debug("user is deactivated", logx.String("email", email))
		return "", directory.ErrNotFound
	}
	return u.ID, nil
}

func (d *Directory) Send(ctx context.Context, chatID, text string) error {
	_, _, err := d.api.PostMessageContext(ctx, chatID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(true))
	if err != nil {
		return fmt.Errorf("slackdir: post to %s: %w", chatID, err)
	}
	return nil
}

// The Web API reports a missing user as the error string "users_not_found".
func isUserMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "users_not_found")
}
