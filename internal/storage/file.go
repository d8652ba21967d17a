package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nthweekday/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.entries.json (full snapshot, rewritten atomically)
//   - <prefix>.audit.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	entriesPath string
	entries     map[string]Entry
	auditFile   *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	entriesPath := prefix + ".entries.json"
	entries := map[string]Entry{}
	if err := loadSnapshot(entriesPath, &entries); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("entries", len(entries)))
	return &fileStore{
		log:         log,
		entriesPath: entriesPath,
		entries:     entries,
		auditFile:   af,
	}, nil
}

func loadSnapshot(path string, out *map[string]Entry) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return err
	}
	// a "null" snapshot decodes to a nil map, which means closed
	if *out == nil {
		*out = map[string]Entry{}
	}
	return nil
}

// flushLocked rewrites the snapshot via tmp + rename so a crash never
// leaves a half-written file behind.
func (s *fileStore) flushLocked() error {
	tmp := s.entriesPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.entriesPath)
}

func (s *fileStore) PutEntry(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return ErrClosed
	}
	prev, had := s.entries[e.ID]
	s.entries[e.ID] = e
	if err := s.flushLocked(); err != nil {
		if had {
			s.entries[e.ID] = prev
		} else {
			delete(s.entries, e.ID)
		}
		return err
	}
	return nil
}

func (s *fileStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return Entry{}, ErrClosed
	}
	e, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *fileStore) ListEntries(ctx context.Context, domain string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
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

func (s *fileStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return ErrClosed
	}
	prev, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	if err := s.flushLocked(); err != nil {
		s.entries[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, a AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	return json.NewEncoder(s.auditFile).Encode(a)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
