package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/nexa/internal/config"
	"github.com/edgard/nexa/internal/database"
)

// Dispatcher re-enqueues a stored message for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, messageID int64) error
}

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Store      database.Store
	Dispatcher Dispatcher
	Config     config.SchedulerConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
