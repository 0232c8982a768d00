// Package recording handles retention of call recordings on disk.
package recording

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sipdeck/sipdeck/internal/database"
)

// StartCleanupTicker runs a background goroutine that periodically removes
// recording files older than retentionDays. The call record keeps its row;
// only the recording_file reference is cleared and the WAV file deleted.
// A retentionDays of 0 disables cleanup. The goroutine stops when ctx is
// cancelled.
func StartCleanupTicker(ctx context.Context, calls database.CallRepository, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		slog.Info("recording retention disabled, keeping recordings forever")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				paths, err := calls.DeleteExpiredRecordings(ctx, retentionDays)
				if err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
					continue
				}
				if len(paths) == 0 {
					continue
				}

				slog.Info("recording retention cleanup",
					"deleted", len(paths), "retention_days", retentionDays)

				for _, p := range paths {
					if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
						slog.Warn("failed to remove recording file", "path", p, "error", err)
					}
				}
			}
		}
	}()
}
