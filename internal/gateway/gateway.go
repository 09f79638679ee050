// Package gateway orchestrates the gateway's components: the HTTP API, the
// message poll loop, and the optional Telegram channel. Run blocks until the
// context is cancelled or a component fails.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"billgate/internal/channel"
	"billgate/internal/config"
	"billgate/internal/database"
	"billgate/internal/processor"
	"billgate/internal/server"
)

const shutdownTimeout = 10 * time.Second

// Gateway wires the long-running components together.
type Gateway struct {
	cfg       *config.Config
	store     database.Store
	processor *processor.Processor
	server    *server.Server
	telegram  *channel.Telegram
	log       *slog.Logger
}

// New creates the orchestrator. The telegram channel may be nil when the
// channel is disabled.
func New(
	cfg *config.Config,
	store database.Store,
	proc *processor.Processor,
	srv *server.Server,
	tg *channel.Telegram,
	log *slog.Logger,
) *Gateway {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		cfg:       cfg,
		store:     store,
		processor: proc,
		server:    srv,
		telegram:  tg,
		log:       log.With("component", "gateway"),
	}
}

// Run starts all components and blocks until shutdown. A clean context
// cancellation returns nil.
func (g *Gateway) Run(ctx context.Context) error {
	g.log.Info("Starting gateway")

	eg, gCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := g.server.Start(); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-gCtx.Done()
		g.log.Info("Shutdown signal received, stopping HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		return g.runPoller(gCtx)
	})

	if g.telegram != nil {
		eg.Go(func() error {
			g.telegram.Start(gCtx)
			if gCtx.Err() == nil {
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			return nil
		})
	}

	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		g.log.Error("Gateway stopped due to error", "error", err)
		return err
	}

	g.log.Info("Gateway stopped gracefully")
	return nil
}

// runPoller drains the unprocessed message backlog on a fixed interval.
// Singleton mode keeps a slow drain from overlapping with the next tick.
func (g *Gateway) runPoller(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(g.cfg.Poller.Interval),
		gocron.NewTask(func() {
			if err := g.drainOnce(ctx); err != nil {
				g.log.ErrorContext(ctx, "Message drain failed", "error", err)
			}
		}),
		gocron.WithName("message_drain"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule message drain: %w", err)
	}

	sched.Start()
	g.log.Info("Message poller started", "interval", g.cfg.Poller.Interval)

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		g.log.Error("Error stopping scheduler", "error", err)
	}
	return nil
}

// drainOnce processes one batch of unprocessed inbound messages with bounded
// concurrency. Per-message failures are logged and do not stop the batch.
func (g *Gateway) drainOnce(ctx context.Context) error {
	msgs, err := g.store.ListUnprocessedUserMessages(ctx, g.cfg.Poller.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	g.log.DebugContext(ctx, "Draining message batch", "count", len(msgs))

	eg, pCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Poller.MaxConcurrent)
	for _, msg := range msgs {
		eg.Go(func() error {
			if err := g.processor.Process(pCtx, msg); err != nil {
				g.log.ErrorContext(pCtx, "Failed to process message", "message_id", msg.ID, "error", err)
			}
			return nil
		})
	}
	return eg.Wait()
}
