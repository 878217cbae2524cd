package startup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStagingFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("webm bytes"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestCleanupStagingFiles(t *testing.T) {
	t.Run("removes old staging files", func(t *testing.T) {
		dir := t.TempDir()
		old := writeStagingFile(t, dir, "rec-01HZ1234567890ABCDEF.mp4", 72*time.Hour)
		recent := writeStagingFile(t, dir, "rec-01HZ0000000000ABCDEF.m4a", time.Hour)

		removed, err := CleanupStagingFiles(newTestLogger(), dir, 48*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.NoFileExists(t, old)
		assert.FileExists(t, recent)
	})

	t.Run("ignores unrelated files and directories", func(t *testing.T) {
		dir := t.TempDir()
		other := writeStagingFile(t, dir, "notes.txt", 72*time.Hour)
		sub := filepath.Join(dir, "rec-like-directory")
		require.NoError(t, os.Mkdir(sub, 0o755))

		removed, err := CleanupStagingFiles(newTestLogger(), dir, 48*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.FileExists(t, other)
		assert.DirExists(t, sub)
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		removed, err := CleanupStagingFiles(newTestLogger(), filepath.Join(t.TempDir(), "absent"), time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
