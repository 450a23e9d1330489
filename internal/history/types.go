package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "webtexter/pkg/logx"
)

// Record is one attempted (number, chunk) send.
type Record struct {
	At         time.Time `json:"at"`
	Carrier    string    `json:"carrier"`
	Recipient  string    `json:"recipient"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkTotal int       `json:"chunk_total"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}

// Store is the minimal persistence API used by the orchestrator.
type Store interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

// ErrDisabled is returned by a store that was compiled out.
var ErrDisabled = errors.New("history store disabled")

type Config struct {
	// Driver selects the backend: "none" (default), "file" or "sqlite".
	Driver string
	Path   string
	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration
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

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
