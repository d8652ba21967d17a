package storage

import (
	"context"
	"strings"
	"sync"
)

type memStore struct {
	mu      sync.Mutex
	closed  bool
	entries map[string]Entry
	audit   []AuditEntry
}

// NewMemory returns a process-local store. Nothing survives a restart.
func NewMemory() Store {
	return &memStore{entries: map[string]Entry{}}
}

func (s *memStore) PutEntry(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[e.ID] = e
	return nil
}

func (s *memStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, ErrClosed
	}
	e, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *memStore) ListEntries(ctx context.Context, domain string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if domain == "" || e.Domain == domain {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *memStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memStore) AppendAudit(ctx context.Context, a AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, a)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
