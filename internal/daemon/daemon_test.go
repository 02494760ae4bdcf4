package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileLifecycle(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "autotrack.pid"))

	pid, err := d.ReadPID()
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, d.WritePID())
	pid, err = d.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, pid, err := d.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, d.RemovePID())
	require.NoError(t, d.RemovePID())

	running, _, err = d.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
}

func TestStalePIDFileIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotrack.pid")
	// PIDs above the kernel's pid_max cannot belong to a live process.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)+"\n"), 0644))

	d := New(path)
	running, _, err := d.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotrack.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))

	_, err := New(path).ReadPID()
	assert.Error(t, err)
}

func TestStopWhenNotRunning(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "autotrack.pid"))
	assert.ErrorIs(t, d.Stop(time.Second), ErrNotRunning)
}

func TestIsChild(t *testing.T) {
	t.Setenv(ChildEnv, "")
	assert.False(t, IsChild())
	t.Setenv(ChildEnv, "1")
	assert.True(t, IsChild())
}
