package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the delivery history store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Keep        int           // how many entries Recent may return; 0 means default
}

// Delivery records one announcement attempt.
// Keep it compact and schema-stable.
type Delivery struct {
	At         time.Time `json:"at"`
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	LevelLabel string    `json:"level,omitempty"`
	TimeLabel  string    `json:"time,omitempty"`
	Rank       int       `json:"rank"`
	ChatID     int64     `json:"chat_id"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
}
