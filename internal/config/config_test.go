package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
http:
  addr: "127.0.0.1:8484"
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
tracking:
  base_url: https://studio.example.com
  script_name: relay
  api_key: sg-key
chat:
  backend: slack
  slack:
    token: xoxb-test
relay:
  max_calls: 5
  period: 10s
`

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := writeConfig(t, "relay.yaml", validYAML).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracking.BaseURL != "https://studio.example.com" {
		t.Fatalf("base_url = %q", cfg.Tracking.BaseURL)
	}
	if cfg.Chat.Backend != "slack" || cfg.Chat.Slack.Token != "xoxb-test" {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
	if cfg.Relay.MaxCalls != 5 || cfg.Relay.Period != "10s" {
		t.Fatalf("relay = %+v", cfg.Relay)
	}
}

func TestLoadJSON(t *testing.T) {
	m := writeConfig(t, "relay.json", `{
		"http": {"addr": "127.0.0.1:0"},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"tracking": {"base_url": "https://x.example.com", "script_name": "relay", "api_key": "k"},
		"chat": {"backend": "telegram", "telegram": {"token": "t", "roster": {"a@x": 7}}},
		"relay": {}
	}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Telegram.Roster["a@x"] != 7 {
		t.Fatalf("roster = %v", cfg.Chat.Telegram.Roster)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	m := writeConfig(t, "relay.yaml", validYAML+"\nthrottle: {}\n")
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown-field rejection", err)
	}
}

func TestEnvOverlaysSecrets(t *testing.T) {
	t.Setenv("SHOTGRID_API_KEY", "from-env")
	t.Setenv("SLACK_TOKEN", "xoxb-env")

	cfg, err := writeConfig(t, "relay.yaml", validYAML).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracking.APIKey != "from-env" {
		t.Fatalf("api_key = %q, want env value", cfg.Tracking.APIKey)
	}
	if cfg.Chat.Slack.Token != "xoxb-env" {
		t.Fatalf("token = %q, want env value", cfg.Chat.Slack.Token)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.Tracking.BaseURL = "" }, "tracking.base_url"},
		{"missing api key", func(c *Config) { c.Tracking.APIKey = "" }, "tracking.script_name"},
		{"bad backend", func(c *Config) { c.Chat.Backend = "irc" }, "chat.backend"},
		{"slack without token", func(c *Config) { c.Chat.Slack.Token = "" }, "chat.slack.token"},
		{"bad duration", func(c *Config) { c.Relay.Period = "ten seconds" }, "relay.period"},
		{"negative rate", func(c *Config) { c.HTTP.RequestsPerSec = -1 }, "requests_per_sec"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := writeConfig(t, "relay.yaml", validYAML).Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 42); err != nil || d != 42 {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "3s", 42); err != nil || d.Seconds() != 3 {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}
