// Package main contains the entrypoint for the lunabot chat bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/lunabot/internal/audio"
	"github.com/edgard/lunabot/internal/bot"
	"github.com/edgard/lunabot/internal/bot/handlers"
	"github.com/edgard/lunabot/internal/bot/tasks"
	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/discord"
	"github.com/edgard/lunabot/internal/gemini"
	"github.com/edgard/lunabot/internal/gigachat"
	"github.com/edgard/lunabot/internal/health"
	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/logger"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/playback"
	"github.com/edgard/lunabot/internal/telegram"
	"github.com/edgard/lunabot/internal/tempfile"
	"github.com/edgard/lunabot/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "lunabot",
		Version:       version,
		Short:         "Conversational chat bot with image generation and voice playback",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if code := run(ctx, configPath); code != 0 {
				return fmt.Errorf("exit code %d", code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "./config.yaml", "Path to configuration file (optional)")
	return cmd
}

// run initializes every component (config, logger, temp files, provider, platform,
// playback, handlers, scheduler, health server), blocks until shutdown and returns
// an exit code (0 for success, 1 for failure).
func run(ctx context.Context, configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON, "version", version)

	files, err := tempfile.NewRegistry(cfg.Temp.Dir, log)
	if err != nil {
		log.Error("Failed to prepare temp directory", "error", err)
		return 1
	}
	// Images and tracks left by a previous run are no longer referenced by anything.
	if n, err := files.Sweep(0); err != nil {
		log.Warn("Failed to sweep temp directory", "dir", files.Dir(), "error", err)
	} else if n > 0 {
		log.Info("Removed stale temp files", "dir", files.Dir(), "count", n)
	}

	provider, err := newProvider(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize language model provider", "provider", cfg.LLM.Provider, "error", err)
		return 1
	}

	client, err := newPlatform(cfg, log)
	if err != nil {
		log.Error("Failed to initialize chat platform", "platform", cfg.Platform.Kind, "error", err)
		return 1
	}

	loop := worker.NewLoop(log, cfg.Bot.InboxSize)
	executor := worker.NewExecutor(log, loop, cfg.Bot.Workers)

	ctrl := playback.NewController(playback.Deps{
		Logger:   log,
		Client:   client,
		Audio:    audio.NewYTDLP(cfg.Audio, files.Dir(), log),
		Files:    files,
		Executor: executor,
		Loop:     loop,
		Messages: cfg.Messages,
		Grace:    cfg.Audio.Grace,
	})

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    conversation.NewStore(cfg.Bot.SystemPrompt, cfg.Bot.MaxHistory),
		Provider: provider,
		Client:   client,
		Executor: executor,
		Files:    files,
		Playback: ctrl,
	}
	router := bot.NewRouter(log,
		bot.RouterConfig{
			ChannelID:     cfg.Platform.ChannelID,
			CommandPrefix: cfg.Platform.CommandPrefix,
			DrawTrigger:   cfg.Bot.DrawTrigger,
		},
		client.Self,
		handlers.RegisterAllCommands(hDeps),
		handlers.NewDrawHandler(hDeps),
		handlers.NewChatHandler(hDeps),
	)

	tDeps := tasks.TaskDeps{Logger: log, Files: files, Config: cfg}
	sched, err := bot.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, bot.Components{
		Client:    client,
		Loop:      loop,
		Executor:  executor,
		Router:    router,
		Playback:  ctrl,
		Scheduler: sched,
		Health:    health.NewServer(log, cfg.HTTP.Port, client.Self),
	})

	log.Info("Starting bot...", "platform", cfg.Platform.Kind, "provider", cfg.LLM.Provider)
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

func newProvider(ctx context.Context, cfg *config.Config, log *slog.Logger) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.NewClient(ctx, cfg.Gemini, log)
	case "gigachat":
		return gigachat.NewClient(cfg.GigaChat, log)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

func newPlatform(cfg *config.Config, log *slog.Logger) (platform.Client, error) {
	switch cfg.Platform.Kind {
	case "telegram":
		return telegram.NewClient(cfg.Platform.Token, log)
	case "discord":
		return discord.NewClient(cfg.Platform.Token, log)
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform.Kind)
	}
}
