// Package main contains the entrypoint for the billing gateway service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"billgate/internal/billing"
	"billgate/internal/channel"
	"billgate/internal/config"
	"billgate/internal/database"
	"billgate/internal/gateway"
	"billgate/internal/intent"
	"billgate/internal/llm"
	"billgate/internal/logger"
	"billgate/internal/processor"
	"billgate/internal/server"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, store, billing client,
// extractor, processor, HTTP server, optional Telegram channel), runs the
// gateway until shutdown, and returns the process exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	model, err := llm.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize language model client", "error", err)
		return 1
	}
	extractor := intent.NewExtractor(model, log)

	billingClient := billing.NewClient(cfg.Billing, log)
	tokens := billing.NewTokenCache(billingClient, log)
	dispatcher := billing.NewDispatcher(billingClient, tokens, log)

	proc := processor.New(processor.Deps{
		Store:      store,
		Extractor:  extractor,
		Dispatcher: dispatcher,
		Log:        log,
	})

	srv := server.New(cfg.Server, store, tokens, log)

	var tg *channel.Telegram
	if cfg.Telegram.Token != "" {
		tg, err = channel.NewTelegram(cfg.Telegram.Token, store, tokens, log)
		if err != nil {
			log.Error("Failed to create Telegram channel", "error", err)
			return 1
		}
		proc.RegisterNotifier(database.ChannelTelegram, tg)
		log.Info("Telegram channel enabled")
	} else {
		log.Info("Telegram channel disabled, no token configured")
	}

	app := gateway.New(cfg, store, proc, srv, tg, log)

	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Gateway stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Gateway stopped gracefully")
	return 0
}
