// Package tasks holds the scheduled maintenance jobs of the backend.
package tasks

import "context"

// ScheduledTaskFunc is one run of a scheduled task. It must honor ctx.
type ScheduledTaskFunc func(ctx context.Context) error

const (
	RedispatchUnprocessed = "redispatch_unprocessed"
	SQLMaintenance        = "sql_maintenance"
)

// RegisterAllTasks returns every task keyed by its configuration name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		RedispatchUnprocessed: newRedispatchTask(deps),
		SQLMaintenance:        newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
