// Package tasks implements the bot's scheduled maintenance tasks.
package tasks

import (
	"log/slog"

	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/tempfile"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Files  *tempfile.Registry
	Config *config.Config
}
