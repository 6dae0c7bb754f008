package tasks

import (
	"context"
	"errors"
	"fmt"
)

// newRedispatchTask re-enqueues messages that stayed unprocessed longer than
// the redispatch window. It is the recovery path for lost or dropped tasks.
func newRedispatchTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", RedispatchUnprocessed)

	return func(ctx context.Context) error {
		cutoff := deps.now().Add(-deps.Config.RedispatchAfter)
		ids, err := deps.Store.ListUnprocessedBefore(ctx, cutoff, deps.Config.RedispatchBatch)
		if err != nil {
			return fmt.Errorf("failed to list unprocessed messages: %w", err)
		}
		if len(ids) == 0 {
			log.DebugContext(ctx, "No stale unprocessed messages")
			return nil
		}

		var errs []error
		dispatched := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := deps.Dispatcher.Dispatch(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			dispatched++
		}

		log.InfoContext(ctx, "Redispatched unprocessed messages", "found", len(ids), "dispatched", dispatched)
		if len(errs) > 0 {
			return fmt.Errorf("%d of %d redispatches failed: %w", len(errs), len(ids), errors.Join(errs...))
		}
		return nil
	}
}
