package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/ledger/sqlite"
	"github.com/actionsum/autotrack/internal/models"
	"github.com/actionsum/autotrack/internal/session"
)

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AUTOTRACK_DATABASE_PATH", filepath.Join(dir, "autotrack.db"))
	t.Setenv("AUTOTRACK_DAEMON_PID_FILE", filepath.Join(dir, "autotrack.pid"))
	t.Setenv("AUTOTRACK_WEB_PORT", "8080")
	t.Setenv("AUTOTRACK_REPORT_TIMEZONE", "Local")
	return dir
}

func executeCLI(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "config.toml")}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func seedEntry(t *testing.T, dir string, start time.Time) {
	t.Helper()
	db, err := sqlite.Connect(filepath.Join(dir, "autotrack.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Initialize())

	_, err = sqlite.NewStore(db).CreateEntry(context.Background(), "Work", "Work", start)
	require.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	dir := testEnv(t)
	out, err := executeCLI(t, dir, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "autotrack version "+version)
}

func TestConfigCommand(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ledger]\nactivity = \"Deep Work\"\n"), 0o600))

	out, err := executeCLI(t, dir, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "[ledger]")
	assert.Contains(t, out, "Deep Work")

	out, err = executeCLI(t, dir, "", "config", "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Activity: Deep Work")
	assert.Contains(t, out, "Port: 8080")
}

func TestInvalidConfigFails(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ledger]\nbackend = \"paper\"\n"), 0o600))

	_, err := executeCLI(t, dir, "", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger backend")
}

func TestReportCommand(t *testing.T) {
	dir := testEnv(t)
	seedEntry(t, dir, time.Now().Add(-30*time.Minute))

	out, err := executeCLI(t, dir, "", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Work Report - day")

	out, err = executeCLI(t, dir, "", "report", "week", "--json")
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Contains(t, report, "total_seconds")
	assert.Contains(t, report, "days")

	_, err = executeCLI(t, dir, "", "report", "year")
	assert.Error(t, err)
}

func TestReportRequiresSQLiteBackend(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("AUTOTRACK_LEDGER_BACKEND", "hamster")

	_, err := executeCLI(t, dir, "", "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports require the sqlite ledger backend")
}

func TestClearCommand(t *testing.T) {
	dir := testEnv(t)
	seedEntry(t, dir, time.Now().Add(-time.Hour))

	out, err := executeCLI(t, dir, "no\n", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled")

	out, err = executeCLI(t, dir, "yes\n", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Database cleared successfully")

	db, err := sqlite.Connect(filepath.Join(dir, "autotrack.db"))
	require.NoError(t, err)
	defer db.Close()
	entries, err := sqlite.NewStore(db).EntriesSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStopWhenNotRunning(t *testing.T) {
	dir := testEnv(t)
	out, err := executeCLI(t, dir, "", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestStatusWithoutSession(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	t.Setenv("XDG_CURRENT_DESKTOP", "")
	t.Setenv("DISPLAY", "")

	out, err := executeCLI(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Not running")
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "Could not open session")
}

func TestStatusShowsRecentErrors(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	t.Setenv("XDG_CURRENT_DESKTOP", "")
	t.Setenv("DISPLAY", "")
	seedEntry(t, dir, ledger.StartOfDay(time.Now()))

	db, err := sqlite.Connect(filepath.Join(dir, "autotrack.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.NewStore(db).CreateErrorLog(&models.ErrorLog{
		Timestamp: time.Now().Add(-5 * time.Minute),
		Event:     "active-changed(true)",
		Command:   "close-open-entry",
		ErrorMsg:  "ledger unavailable: bus gone",
	}))
	require.NoError(t, db.Close())

	out, err := executeCLI(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "State: running")
	assert.Contains(t, out, "Recent Ledger Errors:")
	assert.Contains(t, out, "close-open-entry: ledger unavailable: bus gone")
}

func TestFormatErrors(t *testing.T) {
	assert.Empty(t, formatErrors(nil))

	at := time.Date(2024, time.March, 11, 9, 30, 0, 0, time.Local)
	text := formatErrors([]*models.ErrorLog{
		{Timestamp: at, Command: "upsert-open-entry", ErrorMsg: "ledger rejected call"},
	})
	assert.Contains(t, text, "2024-03-11 09:30 upsert-open-entry: ledger rejected call")
}

func TestRunFailsWithoutSession(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("AUTOTRACK_SESSION_SOURCE", "x11")
	t.Setenv("DISPLAY", "")

	_, err := executeCLI(t, dir, "", "run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrUnavailable), "got %v", err)
	assert.Contains(t, err.Error(), "failed to open session signal source")

	_, statErr := os.Stat(filepath.Join(dir, "autotrack.pid"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFormatEntry(t *testing.T) {
	start := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.Local)
	now := start.Add(95 * time.Minute)

	open := &ledger.Entry{ID: 1, Category: "Work", Activity: "Writing", Start: start}
	text := formatEntry(open, now)
	assert.Contains(t, text, "Activity: Writing@Work")
	assert.Contains(t, text, "State: running")
	assert.Contains(t, text, "Duration: 1h35m")

	end := start.Add(time.Hour)
	closed := &ledger.Entry{ID: 1, Category: "Work", Activity: "Writing", Start: start, End: &end}
	text = formatEntry(closed, now)
	assert.Contains(t, text, "State: stopped at 10:00")
	assert.Contains(t, text, "Duration: 1h00m")

	long := &ledger.Entry{ID: 2, Category: "Work", Activity: strings.Repeat("x", 60), Start: start}
	text = formatEntry(long, now)
	assert.Contains(t, text, "Activity: "+strings.Repeat("x", 37)+"...@Work")
}
