package audit

import (
	"context"
	"errors"
	"strings"

	"aep/pkg/logx"
)

// Sink is the persistence API behind the trail.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open initializes the configured sink. It returns (nil, nil) if
// persistence is disabled; the in-memory ring works either way.
func Open(cfg Config, log logx.Logger) (Sink, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
