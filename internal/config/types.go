package config

// Config is the full on-disk configuration. All durations are Go duration
// strings (e.g. "500ms", "10s", "1m").
//
// Secrets (API keys, chat tokens) may be left out of the file and supplied
// through the environment instead; see env.go for the variable names.
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Tracking TrackingConfig `json:"tracking"`
	Chat     ChatConfig     `json:"chat"`
	Relay    RelayConfig    `json:"relay"`
	Journal  *JournalConfig `json:"journal,omitempty"`
}

// HTTPConfig controls the inbound webhook server.
type HTTPConfig struct {
	Addr string `json:"addr"`           // default: "127.0.0.1:8484"
	Path string `json:"path,omitempty"` // default: "/webhook"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Inbound request limiting. 0 disables it.
	RequestsPerSec float64 `json:"requests_per_sec,omitempty"`
	Burst          int     `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TrackingConfig points at the production tracking (ShotGrid) site.
type TrackingConfig struct {
	BaseURL    string `json:"base_url"`
	ScriptName string `json:"script_name"`
	APIKey     string `json:"api_key,omitempty" env:"SHOTGRID_API_KEY"`
	Timeout    string `json:"timeout,omitempty"`
}

// ChatConfig selects and configures the outbound chat backend.
type ChatConfig struct {
	// Backend is "slack" or "telegram".
	Backend  string             `json:"backend"`
	Slack    SlackConfig        `json:"slack,omitempty"`
	Telegram TelegramChatConfig `json:"telegram,omitempty"`

	// Identity lookups are cached; see internal/directory.
	CacheTTL        string `json:"cache_ttl,omitempty"` // default: "15m"
	CacheMaxEntries int    `json:"cache_max_entries,omitempty"`
}

type SlackConfig struct {
	Token string `json:"token,omitempty" env:"SLACK_TOKEN"`
}

type TelegramChatConfig struct {
	Token string `json:"token,omitempty" env:"TELEGRAM_TOKEN"`
	// Roster maps recipient email -> chat ID. Telegram has no email lookup,
	// so identities must be declared here.
	Roster map[string]int64 `json:"roster,omitempty"`
}

// RelayConfig tunes pipeline behavior. MaxCalls/Period bound the outbound
// send rate across all recipients.
type RelayConfig struct {
	MaxCalls int    `json:"max_calls,omitempty"` // default: 5
	Period   string `json:"period,omitempty"`    // default: "10s"

	// AttachmentDelay is the grace before looking up note attachments,
	// covering the tracking store's eventual consistency. Default: "3s".
	AttachmentDelay string `json:"attachment_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"` // default: "10s"
}

// JournalConfig controls the optional sqlite delivery journal.
type JournalConfig struct {
	Path        string `json:"path"`
	Retention   string `json:"retention,omitempty"` // e.g. "720h"; empty keeps everything
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
