package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("entry not found")
)

// Config configures storage. An empty Driver (or "none") selects the
// in-memory store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is a persisted configuration entry. Data is owned by the domain
// that created it and stored opaquely.
type Entry struct {
	ID        string          `json:"id"`
	Domain    string          `json:"domain"`
	Title     string          `json:"title"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AuditEntry records a change to an entry or a sensor state transition.
type AuditEntry struct {
	At      time.Time `json:"at"`
	ActorID int64     `json:"actor_id,omitempty"`
	Domain  string    `json:"domain"`
	EntryID string    `json:"entry_id"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
}

// Store is the persistence API used by the config flow and plugins.
type Store interface {
	PutEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, id string) (Entry, error)
	ListEntries(ctx context.Context, domain string) ([]Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, a AuditEntry) error
	Close() error
}
