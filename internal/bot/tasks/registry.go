package tasks

import (
	"context"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context comes
// from the scheduler and should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// TempSweepTask is the registry name of the orphaned temp file sweep.
const TempSweepTask = "temp_sweep"

// RegisterAllTasks returns every task keyed by the name used in scheduler.tasks.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks[TempSweepTask] = newTempSweepTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
