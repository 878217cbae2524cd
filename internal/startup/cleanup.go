// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/meetrec/internal/recorder"
)

// CleanupStagingFiles removes staging files left behind by sessions that
// never finished, typically after an unclean process exit. Only files
// matching the staging prefix and older than maxAge are removed; a recent
// file may belong to a crash the operator still wants to salvage.
//
// Returns the number of files removed.
func CleanupStagingFiles(logger *slog.Logger, stagingDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(stagingDir); os.IsNotExist(err) {
		logger.Debug("staging directory does not exist, skipping cleanup",
			slog.String("path", stagingDir),
		)
		return 0, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), recorder.StagingPrefix) {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Warn("reading staging file info",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent staging file",
				slog.String("path", path),
				slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
			)
			continue
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("removing abandoned staging file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("removed abandoned staging file",
			slog.String("path", path),
			slog.Int64("size_bytes", info.Size()),
			slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
		)
		removed++
	}
	return removed, nil
}
