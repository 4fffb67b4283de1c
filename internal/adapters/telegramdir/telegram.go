// Package telegramdir implements directory.Directory on the Telegram Bot API.
//
// Telegram has no server-side email lookup, so recipient identities come from
// a configured roster mapping email addresses to chat IDs. The roster can be
// swapped at runtime on config reload.
package telegramdir

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"shotrelay/internal/directory"
	logx "shotrelay/pkg/logx"
)

type Config struct {
	Token string
	// Roster maps lowercase email -> chat ID.
	Roster map[string]int64
}

type Directory struct {
	bot *tele.Bot
	log logx.Logger

	rosterMu sync.RWMutex
	roster   map[string]int64
}

func New(cfg Config, log logx.Logger) (*Directory, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegramdir: token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegramdir: %w", err)
	}
	d := &Directory{bot: b, log: log}
	d.SetRoster(cfg.Roster)
	return d, nil
}

// SetRoster replaces the email-to-chat mapping. Keys are normalized to
// lowercase; callers pass the roster straight from config.
func (d *Directory) SetRoster(roster map[string]int64) {
	m := make(map[string]int64, len(roster))
	for email, id := range roster {
		m[strings.ToLower(strings.TrimSpace(email))] = id
	}
	d.rosterMu.Lock()
	d.roster = m
	d.rosterMu.Unlock()
	d.log.Debug("roster updated", logx.Int("entries", len(m)))
}

func (d *Directory) LookupByEmail(_ context.Context, email string) (string, error) {
	d.rosterMu.RLock()
	id, ok := d.roster[strings.ToLower(strings.TrimSpace(email))]
	d.rosterMu.RUnlock()
	if !ok {
		return "", directory.ErrNotFound
	}
	return strconv.FormatInt(id, 10), nil
}

func (d *Directory) Send(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegramdir: bad chat id %q: %w", chatID, err)
	}
	if _, err := d.bot.Send(&tele.Chat{ID: id}, text); err != nil {
		return fmt.Errorf("telegramdir: send to %d: %w", id, err)
	}
	return nil
}
