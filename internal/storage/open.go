package storage

import (
	"fmt"
	"sort"
	"strings"

	"nthweekday/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func sortEntries(out []Entry) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
