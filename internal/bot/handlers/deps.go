// Package handlers implements the reply pipelines and chat commands.
// Every handler runs on the control loop and hands blocking work to the executor.
package handlers

import (
	"log/slog"

	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/playback"
	"github.com/edgard/lunabot/internal/tempfile"
	"github.com/edgard/lunabot/internal/worker"
)

// HandlerDeps provides dependencies for pipelines and command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    *conversation.Store
	Provider llm.Provider
	Client   platform.Client
	Executor *worker.Executor
	Files    *tempfile.Registry
	Playback *playback.Controller
}
