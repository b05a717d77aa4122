package tasks

import (
	"context"
	"fmt"
	"time"
)

// newTempSweepTask removes temp files left behind by a crashed run. Files held by
// a live resource are never touched.
func newTempSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", TempSweepTask)

	return func(ctx context.Context) error {
		startTime := time.Now()

		removed, err := deps.Files.Sweep(deps.Config.Temp.MaxAge)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Temp sweep finished with errors", "removed", removed, "error", err, "duration", duration)
			return fmt.Errorf("temp sweep failed: %w", err)
		}

		if removed > 0 {
			log.InfoContext(ctx, "Removed orphaned temp files", "removed", removed, "duration", duration)
		} else {
			log.DebugContext(ctx, "No orphaned temp files", "duration", duration)
		}
		return nil
	}
}
