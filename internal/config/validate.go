package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a parsed config for the mistakes that would otherwise only
// surface as runtime failures. Called on load and before committing a reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Tracking.BaseURL) == "" {
		return errors.New("tracking.base_url is required")
	}
	if strings.TrimSpace(cfg.Tracking.ScriptName) == "" || strings.TrimSpace(cfg.Tracking.APIKey) == "" {
		return errors.New("tracking.script_name and tracking.api_key are required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Chat.Backend)) {
	case "slack":
		if strings.TrimSpace(cfg.Chat.Slack.Token) == "" {
			return errors.New("chat.slack.token is required for the slack backend")
		}
	case "telegram":
		if strings.TrimSpace(cfg.Chat.Telegram.Token) == "" {
			return errors.New("chat.telegram.token is required for the telegram backend")
		}
	default:
		return fmt.Errorf("chat.backend must be \"slack\" or \"telegram\", got %q", cfg.Chat.Backend)
	}

	if cfg.Relay.MaxCalls < 0 {
		return errors.New("relay.max_calls must be >= 0")
	}
	if cfg.HTTP.RequestsPerSec < 0 {
		return errors.New("http.requests_per_sec must be >= 0")
	}

	// Durations must at least parse; components apply their own defaults.
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
		{"tracking.timeout", cfg.Tracking.Timeout},
		{"chat.cache_ttl", cfg.Chat.CacheTTL},
		{"relay.period", cfg.Relay.Period},
		{"relay.attachment_delay", cfg.Relay.AttachmentDelay},
		{"relay.send_timeout", cfg.Relay.SendTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Journal != nil {
		for _, f := range []struct{ path, raw string }{
			{"journal.retention", cfg.Journal.Retention},
			{"journal.busy_timeout", cfg.Journal.BusyTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}
	return nil
}
