// Package logger provides structured logging for the bot.
// It uses Go's slog package with configurable levels and formats.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/edgard/lunabot/internal/platform"
)

// NewLogger creates a new slog Logger with the specified level and format and
// installs it as the default. If jsonOutput is true, logs are formatted as JSON.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware logs every inbound platform event and how long its handler took.
// Handlers only enqueue work on the control loop, so the duration is hand-off time.
func Middleware(log *slog.Logger) platform.Middleware {
	return func(next platform.HandlerFunc) platform.HandlerFunc {
		return func(ctx context.Context, ev platform.Event) {
			startTime := time.Now()

			logEntry := log.With(
				"message_id", ev.MessageID,
				"author_id", ev.AuthorID,
				"channel_id", ev.ChannelID,
			)
			if ev.GuildID != "" {
				logEntry = logEntry.With("guild_id", ev.GuildID)
			}
			if ev.AuthorIsBot || ev.IsWebhook {
				logEntry = logEntry.With("automated", true)
			}

			logEntry.DebugContext(ctx, "Processing event", "text_preview", truncateString(ev.Content, 50))

			next(ctx, ev)

			logEntry.DebugContext(ctx, "Finished processing event", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
