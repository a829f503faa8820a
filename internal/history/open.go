package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "gtrbot/pkg/logx"
)

const defaultKeep = 200

// Store is the persistence API for delivered announcements.
type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	// Recent returns up to limit deliveries, newest first.
	Recent(ctx context.Context, limit int) ([]Delivery, error)
	// CountSince returns total and world-record delivery counts at or after since.
	CountSince(ctx context.Context, since time.Time) (total, worldRecords int, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Keep <= 0 {
		cfg.Keep = defaultKeep
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
