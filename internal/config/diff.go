package config

import (
	"strings"

	logx "shotrelay/pkg/logx"
)

// changedFields summarizes which sections changed between two configs as
// structured log fields. Secrets (tokens, API keys) are reported only as
// changed/unchanged, never by value.
func changedFields(oldCfg, newCfg *Config) []logx.Field {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := make([]string, 0, 6)

	if oldCfg.HTTP != newCfg.HTTP {
		sections = append(sections, "http")
	}
	if oldCfg.Logging != newCfg.Logging {
		sections = append(sections, "logging")
	}
	if oldCfg.Tracking != newCfg.Tracking {
		sections = append(sections, "tracking")
	}
	if chatChanged(oldCfg.Chat, newCfg.Chat) {
		sections = append(sections, "chat")
	}
	if oldCfg.Relay != newCfg.Relay {
		sections = append(sections, "relay")
	}
	if journalChanged(oldCfg.Journal, newCfg.Journal) {
		sections = append(sections, "journal")
	}

	return []logx.Field{
		logx.String("sections", strings.Join(sections, ",")),
		logx.String("log_level", newCfg.Logging.Level),
		logx.Int("relay_max_calls", newCfg.Relay.MaxCalls),
	}
}

func chatChanged(a, b ChatConfig) bool {
	if a.Backend != b.Backend || a.Slack != b.Slack || a.CacheTTL != b.CacheTTL ||
		a.CacheMaxEntries != b.CacheMaxEntries || a.Telegram.Token != b.Telegram.Token {
		return true
	}
	if len(a.Telegram.Roster) != len(b.Telegram.Roster) {
		return true
	}
	for k, v := range a.Telegram.Roster {
		if b.Telegram.Roster[k] != v {
			return true
		}
	}
	return false
}

func journalChanged(a, b *JournalConfig) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	return a != nil && *a != *b
}
