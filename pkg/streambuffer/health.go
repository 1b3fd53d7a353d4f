package streambuffer

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/sn2d/ingestd/pkg/logger"
)

// WarnOnLowDiskSpace periodically checks the free space on the
// filesystem backing datadir and logs a warning when usage crosses
// thresholdPercent, the disk-side analogue of n-backup's
// SystemMonitor. It blocks until ctx is cancelled.
func WarnOnLowDiskSpace(ctx context.Context, datadir string, thresholdPercent float64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage, err := disk.UsageWithContext(ctx, datadir)
			if err != nil {
				logger.Default().Stream().Debug().Err(err).Msg("disk usage check failed")
				continue
			}
			if usage.UsedPercent >= thresholdPercent {
				logger.Default().Stream().Warn().
					Str("datadir", datadir).
					Float64("used_percent", usage.UsedPercent).
					Msg("stream datadir running low on disk space")
			}
		}
	}
}
