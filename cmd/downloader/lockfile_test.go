package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_CreatesFileWithCurrentPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "downloader.lock")

	release, err := acquireLock(path)
	require.NoError(t, err)
	require.NotNil(t, release)

	defer release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireLock_FlockPreventsSecondAcquisition(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "downloader.lock")

	release1, err := acquireLock(path)
	require.NoError(t, err)
	require.NotNil(t, release1)

	defer release1()

	release2, err := acquireLock(path)
	require.Error(t, err)
	assert.Nil(t, release2)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestAcquireLock_ReleaseRemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "downloader.lock")

	release, err := acquireLock(path)
	require.NoError(t, err)

	release()

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAcquireLock_CreatesMissingParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "downloader.lock")

	release, err := acquireLock(path)
	require.NoError(t, err)

	defer release()

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestAcquireLock_EmptyPathFails(t *testing.T) {
	t.Parallel()

	release, err := acquireLock("")
	require.Error(t, err)
	assert.Nil(t, release)
}
