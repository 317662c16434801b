package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sliink/eventd/internal/core"
)

// logDirFiles returns the names of the files in dir
func logDirFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func newFileLogger(t *testing.T, path string, maxBytes int64, backups int) *Logger {
	t.Helper()
	logger, err := New(Options{
		Log: core.LogConfig{Level: "info", File: path, MaxBytes: maxBytes, BackupCount: backups},
	})
	require.NoError(t, err)
	return logger
}

func TestFileRotation(t *testing.T) {
	filler := strings.Repeat("x", 60)

	t.Run("Rotates before the file passes max_bytes", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.log")
		logger := newFileLogger(t, path, 1024, 2)

		for i := 0; i < 200; i++ {
			logger.Info("filler", "n", i, "payload", filler)
			require.LessOrEqual(t, fileSize(t, path), int64(1024))
		}
		require.NoError(t, logger.Close())

		files := logDirFiles(t, dir)
		assert.Contains(t, files, "eventd.log")
		assert.GreaterOrEqual(t, len(files), 2, "at least one backup")
		assert.LessOrEqual(t, len(files), 3, "active file plus two backups")

		lines := readJSONLines(t, path)
		assert.NotEmpty(t, lines)
		assert.Equal(t, float64(199), lines[len(lines)-1]["n"])
	})

	t.Run("Zero backups keeps only the active file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.log")
		logger := newFileLogger(t, path, 1, 0)

		for i := 0; i < 50; i++ {
			logger.Info("filler", "n", i, "payload", filler)
		}
		require.NoError(t, logger.Close())

		assert.Equal(t, []string{"eventd.log"}, logDirFiles(t, dir))
		lines := readJSONLines(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, float64(49), lines[0]["n"])
	})

	t.Run("Counts what an existing file already holds", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.log")
		previous := strings.Repeat("p", 900) + "\n"
		require.NoError(t, os.WriteFile(path, []byte(previous), 0o644))

		logger := newFileLogger(t, path, 1024, 1)
		logger.Info("filler", "payload", strings.Repeat("y", 200))
		require.NoError(t, logger.Close())

		lines := readJSONLines(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, "filler", lines[0]["msg"])

		files := logDirFiles(t, dir)
		require.Len(t, files, 2)
		for _, name := range files {
			if name == "eventd.log" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Equal(t, previous, string(data))
		}
	})

	t.Run("Small records share a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "eventd.log")
		logger := newFileLogger(t, path, 1<<20, 1)

		for i := 0; i < 10; i++ {
			logger.Info("filler", "n", i)
		}
		require.NoError(t, logger.Close())

		assert.Len(t, readJSONLines(t, path), 10)
	})
}

func TestBackupFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"eventd.log",
		"eventd-2026-01-02T10-00-00.000.log",
		"eventd-2026-01-02T12-00-00.000.log",
		"eventd-2026-01-02T11-00-00.000.log",
		"eventd-notes.log",
		"other-2026-01-02T10-00-00.000.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
	}

	r := newRotatingFile(filepath.Join(dir, "eventd.log"), 1024, 1)

	backups, err := r.backupFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "eventd-2026-01-02T12-00-00.000.log"),
		filepath.Join(dir, "eventd-2026-01-02T11-00-00.000.log"),
		filepath.Join(dir, "eventd-2026-01-02T10-00-00.000.log"),
	}, backups)

	t.Run("Prune keeps the newest and ignores unrelated files", func(t *testing.T) {
		require.NoError(t, r.prune())
		assert.ElementsMatch(t, []string{
			"eventd.log",
			"eventd-2026-01-02T12-00-00.000.log",
			"eventd-notes.log",
			"other-2026-01-02T10-00-00.000.log",
		}, logDirFiles(t, dir))
	})
}

func TestRotationSizeMB(t *testing.T) {
	assert.Equal(t, 1, rotationSizeMB(1))
	assert.Equal(t, 1, rotationSizeMB(1024*1024))
	assert.Equal(t, 2, rotationSizeMB(1024*1024+1))
	assert.Equal(t, 10, rotationSizeMB(10*1024*1024))
}
