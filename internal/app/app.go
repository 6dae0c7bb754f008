// Package app runs the long-lived components of a nexa process and stops
// them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Component is one long-running part of a process. Run must block until ctx
// is cancelled; returning earlier without an error counts as a failure.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run starts every component and waits. The first failure cancels the rest.
func Run(ctx context.Context, logger *slog.Logger, components ...Component) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "app")
	log.Info("Starting components", "count", len(components))

	g, gCtx := errgroup.WithContext(ctx)
	for _, c := range components {
		g.Go(func() error {
			log.Info("Starting component", "name", c.Name)
			err := c.Run(gCtx)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				log.Error("Component failed", "name", c.Name, "error", err)
				return fmt.Errorf("%s: %w", c.Name, err)
			case gCtx.Err() == nil:
				log.Warn("Component stopped unexpectedly", "name", c.Name)
				return fmt.Errorf("%s stopped unexpectedly", c.Name)
			}
			log.Info("Component stopped", "name", c.Name)
			return nil
		})
	}

	log.Info("Running. Waiting for shutdown signal or error...")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped due to error", "error", err)
		return err
	}

	log.Info("Stopped gracefully")
	return nil
}
