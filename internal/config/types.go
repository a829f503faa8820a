package config

// Config is gtrbot's full configuration. YAML and JSON are both accepted;
// YAML is coerced to JSON so a single strict decoder validates both.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Stream   StreamConfig   `json:"stream"`
	API      APIConfig      `json:"api"`
	Relay    RelayConfig    `json:"relay"`

	History *HistoryConfig `json:"history,omitempty"`
	Digest  *DigestConfig  `json:"digest,omitempty"`
	Debug   *DebugConfig   `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id (as string) that receives mirrored warn/error
	// log lines. Empty disables the log sink target.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StreamConfig controls the websocket event feed.
type StreamConfig struct {
	URL string `json:"url"`
	// HandshakeTimeout is a Go duration string. Default "10s".
	HandshakeTimeout string `json:"handshake_timeout,omitempty"`
	// MaxMessageBytes bounds a single frame. Default 512 KiB.
	MaxMessageBytes int64 `json:"max_message_bytes,omitempty"`
}

// APIConfig controls the GTR metadata lookup client.
type APIConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is a Go duration string for a single lookup call. Default "8s".
	Timeout string `json:"timeout,omitempty"`
}

// RelayConfig controls the announcement pipeline.
//
// Mode:
//   - "queued" (default): the stream callback only enqueues; a single drain
//     loop processes one event per tick. Strict arrival-order delivery.
//   - "direct": events are handled on the stream read goroutine; no
//     cross-event ordering guarantee.
//
// Mode is fixed at start; changing it requires a restart.
type RelayConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // omitted means enabled
	Mode    string `json:"mode,omitempty"`
	// ChatID preselects the announcement chat. 0 means unset; the owner
	// arms the relay with /start from the target chat instead.
	ChatID int64 `json:"chat_id,omitempty"`
	// DrainInterval is a Go duration string for the queued-mode tick. Default "1s".
	DrainInterval string `json:"drain_interval,omitempty"`
	// RatePerSec caps outbound announcements. Default 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// HistoryConfig controls the optional delivery history store.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file (sqlite build tag)
//
// If the section is omitted or Driver is empty/"none", history is disabled.
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep is how many deliveries /recent may page over. Default 200.
	Keep int `json:"keep,omitempty"`
}

// DigestConfig controls the optional scheduled summary post.
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression (robfig/cron, standard 5-field).
	// Default "0 9 * * *" (daily at 09:00).
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (pprof + metrics).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics"` // expose prometheus /metrics

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
