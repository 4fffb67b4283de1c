package config

import (
	"github.com/caarlos0/env/v11"
)

// applyEnv overlays secrets from the environment onto a parsed config.
// File values win only when the corresponding variable is unset, so secrets
// can be kept out of the config file entirely:
//
//	SHOTGRID_API_KEY  tracking.api_key
//	SLACK_TOKEN       chat.slack.token
//	TELEGRAM_TOKEN    chat.telegram.token
func applyEnv(cfg *Config) error {
	return env.Parse(cfg)
}
