package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nthweekday/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "file", "entries")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "nthweekday.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err, cfg.Driver)
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func sampleEntry(id string, created time.Time) Entry {
	return Entry{
		ID:        id,
		Domain:    "weekday_of_month",
		Title:     "Bin day " + id,
		Source:    "user",
		Data:      json.RawMessage(`{"weekdays":["sat"],"nth_weekday":["-1"]}`),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStoreEntries(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.PutEntry(ctx, sampleEntry("b", base.Add(time.Minute))))
			require.NoError(t, st.PutEntry(ctx, sampleEntry("a", base)))

			other := sampleEntry("c", base)
			other.Domain = "other"
			require.NoError(t, st.PutEntry(ctx, other))

			got, err := st.GetEntry(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "Bin day a", got.Title)
			assert.JSONEq(t, `{"weekdays":["sat"],"nth_weekday":["-1"]}`, string(got.Data))
			assert.True(t, got.CreatedAt.Equal(base))

			list, err := st.ListEntries(ctx, "weekday_of_month")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID)
			assert.Equal(t, "b", list[1].ID)

			all, err := st.ListEntries(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			upd := sampleEntry("a", base)
			upd.Title = "Renamed"
			upd.UpdatedAt = base.Add(time.Hour)
			require.NoError(t, st.PutEntry(ctx, upd))
			got, err = st.GetEntry(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "Renamed", got.Title)

			require.NoError(t, st.DeleteEntry(ctx, "a"))
			_, err = st.GetEntry(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, st.DeleteEntry(ctx, "a"), ErrNotFound)

			require.NoError(t, st.AppendAudit(ctx, AuditEntry{Domain: "weekday_of_month", EntryID: "b", Action: "state_changed", Detail: "on"}))
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entries.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutEntry(ctx, sampleEntry("x", time.Now())))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Domain: "weekday_of_month", EntryID: "x", Action: "create"}))
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.GetEntry(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Bin day x", got.Title)

	audit, err := os.ReadFile(filepath.Join(filepath.Dir(path), "entries.audit.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"action":"create"`)
}

func TestClosedStore(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.PutEntry(context.Background(), Entry{ID: "x"}), ErrClosed)
	_, err := st.ListEntries(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileStoreNullSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entries.entries.json"), []byte("null\n"), 0o600))

	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "entries")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	list, err := st.ListEntries(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, st.PutEntry(ctx, sampleEntry("x", time.Now())))
	_, err = st.GetEntry(ctx, "x")
	assert.NoError(t, err)
}

func TestCloseDuringUse(t *testing.T) {
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.PutEntry(ctx, sampleEntry("a", time.Now())))

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						err := st.AppendAudit(ctx, AuditEntry{Domain: "weekday_of_month", EntryID: "a", Action: "state_changed"})
						if err != nil {
							assert.ErrorIs(t, err, ErrClosed)
						}
						if _, err := st.GetEntry(ctx, "a"); err != nil {
							assert.ErrorIs(t, err, ErrClosed)
						}
					}
				}()
			}
			require.NoError(t, st.Close())
			wg.Wait()

			_, err := st.GetEntry(ctx, "a")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, st.AppendAudit(ctx, AuditEntry{EntryID: "a"}), ErrClosed)
			assert.NoError(t, st.Close())
		})
	}
}

func TestOpenRejects(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
