package config

import (
	"github.com/kelseyhightower/envconfig"
)

// envOverrides carries the deploy-time secrets and endpoints that should not
// live in the config file. Set via GTRBOT_* environment variables.
type envOverrides struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	StreamURL     string `envconfig:"STREAM_URL"`
	APIBaseURL    string `envconfig:"API_BASE_URL"`
	ChatID        int64  `envconfig:"CHAT_ID"`
}

// ApplyEnvOverrides layers GTRBOT_* environment variables over cfg.
// Env values win over file values so the token can be rotated without
// touching the config file.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	var env envOverrides
	if err := envconfig.Process("GTRBOT", &env); err != nil {
		return
	}
	if env.TelegramToken != "" {
		cfg.Telegram.Token = env.TelegramToken
	}
	if env.StreamURL != "" {
		cfg.Stream.URL = env.StreamURL
	}
	if env.APIBaseURL != "" {
		cfg.API.BaseURL = env.APIBaseURL
	}
	if env.ChatID != 0 {
		cfg.Relay.ChatID = env.ChatID
	}
}
