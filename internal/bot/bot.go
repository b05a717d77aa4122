// Package bot wires the platform connection, the control loop, the router and the
// background services together and manages their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/lunabot/internal/health"
	"github.com/edgard/lunabot/internal/logger"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/playback"
	"github.com/edgard/lunabot/internal/worker"
)

// Bot is the process-wide context: it owns every long-lived component.
type Bot struct {
	logger    *slog.Logger
	client    platform.Client
	loop      *worker.Loop
	executor  *worker.Executor
	router    *Router
	playback  *playback.Controller
	scheduler *Scheduler
	health    *health.Server
}

// Components are the collaborators a Bot runs.
type Components struct {
	Client    platform.Client
	Loop      *worker.Loop
	Executor  *worker.Executor
	Router    *Router
	Playback  *playback.Controller
	Scheduler *Scheduler
	Health    *health.Server
}

// NewBot creates the orchestrator.
func NewBot(logger *slog.Logger, c Components) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		client:    c.Client,
		loop:      c.Loop,
		executor:  c.Executor,
		router:    c.Router,
		playback:  c.Playback,
		scheduler: c.Scheduler,
		health:    c.Health,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
// On the way out voice sessions are closed and in-flight work is drained.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.loop.Run(gCtx)
	})

	g.Go(func() error {
		b.logger.Info("Starting platform listener...")
		handler := platform.Chain(b.enqueue, logger.Middleware(b.logger))
		if err := b.client.Start(gCtx, handler); err != nil {
			return fmt.Errorf("platform listener failed: %w", err)
		}
		if gCtx.Err() == nil {
			b.logger.Warn("Platform listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("platform listener stopped unexpectedly")
		}
		b.logger.Info("Platform listener stopped.")
		return nil
	})

	if b.health != nil {
		g.Go(func() error {
			return b.health.Run(gCtx)
		})
	}

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	// The loop has exited, so session state is no longer shared.
	if b.playback != nil {
		b.playback.Close(context.WithoutCancel(ctx))
	}
	b.executor.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// enqueue hands an inbound event to the control loop. It runs on platform goroutines.
func (b *Bot) enqueue(ctx context.Context, ev platform.Event) {
	if !b.loop.Post(func() { b.router.Route(ctx, ev) }) {
		b.logger.Debug("Dropped event, control loop stopped", "message_id", ev.MessageID)
	}
}
