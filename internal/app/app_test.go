package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nthweekday/internal/config"
	"nthweekday/internal/plugin"
	"nthweekday/internal/plugin/builtin/weekdayofmonth"
)

const appConfig = `{
  "logging": {"level": "error"},
  "scheduler": {"enabled": true, "timezone": "UTC"},
  "storage": {"driver": "file", "path": "%DIR%/entries"},
  "plugins": {
    "weekday_of_month": {
      "enabled": true,
      "config": {"entries": [{"name": "Bin day", "weekdays": ["sat"], "nth_weekday": ["-1"]}]}
    }
  }
}`

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	body = strings.ReplaceAll(body, "%DIR%", filepath.Dir(path))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func status(a *App, name string) plugin.Status {
	for _, st := range a.Plugins().Status() {
		if st.Name == name {
			return st
		}
	}
	return plugin.Status{}
}

func TestAppLifecycleAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, appConfig)

	a, err := New(path)
	require.NoError(t, err)
	wom := weekdayofmonth.New()
	a.Plugins().Register(wom)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	st := status(a, weekdayofmonth.Name)
	require.True(t, st.Running, st.LastError)
	require.Len(t, wom.Sensors(), 1)
	assert.Equal(t, "Bin day", wom.Sensors()[0].Name)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "entries.entries.json"))

	var names []string
	for _, s := range a.sched.Schedules() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "weekday_of_month:refresh")

	// an invalid plugin block is rejected and the previous config stays
	bad := `{"scheduler": {"enabled": true, "timezone": "UTC"},
	  "plugins": {"weekday_of_month": {"enabled": true, "config": {"refresh": "61 0 * * *"}}}}`
	writeConfig(t, path, bad)
	_, err = a.cfgm.Reload(ctx)
	assert.Error(t, err)
	assert.True(t, status(a, weekdayofmonth.Name).Running)

	writeConfig(t, path, `{"scheduler": {"enabled": false},
	  "storage": {"driver": "file", "path": "%DIR%/entries"},
	  "plugins": {"weekday_of_month": {"enabled": false}}}`)
	require.Eventually(t, func() bool {
		return !status(a, weekdayofmonth.Name).Running && !a.sched.Enabled()
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))
	assert.NoError(t, a.Err())
}

func TestNewRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"storage": {"driver": "redis", "path": "x"}}`)
	_, err := New(path)
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	sc, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.Empty(t, sc.Driver)

	sc, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: " SQLite ", Path: "a.db"}})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	_, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite", Path: "a.db", BusyTimeout: "soon"}})
	assert.Error(t, err)
}

func TestGroupLogChat(t *testing.T) {
	assert.Equal(t, int64(-100123), groupLogChat(&config.Config{Telegram: config.TelegramConfig{GroupLog: " -100123 "}}))
	assert.Zero(t, groupLogChat(&config.Config{Telegram: config.TelegramConfig{GroupLog: "@ops"}}))
}
