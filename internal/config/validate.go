package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks field-level constraints that the strict decoder cannot
// express. It does not touch the network.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required (or set GTRBOT_TELEGRAM_TOKEN)")
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}

	if err := validateWSURL("stream.url", c.Stream.URL); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("stream.handshake_timeout", c.Stream.HandshakeTimeout, 10*time.Second); err != nil {
		return err
	}
	if c.Stream.MaxMessageBytes < 0 {
		return fmt.Errorf("stream.max_message_bytes: must be >= 0")
	}

	if err := validateHTTPURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("api.timeout", c.API.Timeout, 8*time.Second); err != nil {
		return err
	}

	switch c.Relay.Mode {
	case "", "queued", "direct":
	default:
		return fmt.Errorf("relay.mode: must be \"queued\" or \"direct\", got %q", c.Relay.Mode)
	}
	if _, err := ParseDurationOrDefault("relay.drain_interval", c.Relay.DrainInterval, time.Second); err != nil {
		return err
	}
	if c.Relay.RatePerSec < 0 {
		return fmt.Errorf("relay.rate_per_sec: must be >= 0")
	}

	if h := c.History; h != nil {
		switch h.Driver {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(h.Path) == "" {
				return fmt.Errorf("history.path: required for driver %q", h.Driver)
			}
		default:
			return fmt.Errorf("history.driver: unknown driver %q", h.Driver)
		}
		if _, err := ParseDurationOrDefault("history.busy_timeout", h.BusyTimeout, 5*time.Second); err != nil {
			return err
		}
		if h.Keep < 0 {
			return fmt.Errorf("history.keep: must be >= 0")
		}
	}

	if d := c.Digest; d != nil && d.Enabled {
		if d.Timezone != "" {
			if _, err := time.LoadLocation(d.Timezone); err != nil {
				return fmt.Errorf("digest.timezone: %w", err)
			}
		}
	}

	if dbg := c.Debug; dbg != nil && dbg.Enabled {
		for _, f := range []struct{ name, raw string }{
			{"debug.read_timeout", dbg.ReadTimeout},
			{"debug.write_timeout", dbg.WriteTimeout},
			{"debug.idle_timeout", dbg.IdleTimeout},
		} {
			if _, err := ParseDurationOrDefault(f.name, f.raw, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateWSURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s: required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s: scheme must be ws or wss, got %q", field, u.Scheme)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s: required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
	return nil
}
