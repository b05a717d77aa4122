package handlers

import (
	"context"

	"github.com/edgard/lunabot/internal/platform"
)

// CommandFunc handles a prefixed command. args is the trimmed text after the name.
type CommandFunc func(ctx context.Context, ev platform.Event, args string)

// RegisteredCommand is a command handler with its help text.
type RegisteredCommand struct {
	Name        string
	Usage       string
	Description string
	Handler     CommandFunc
}

// RegisterAllCommands returns every command keyed by its lowercase name.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredCommand {
	commands := make(map[string]RegisteredCommand)

	commands["play"] = RegisteredCommand{
		Name:        "play",
		Usage:       "play <запрос или ссылка>",
		Description: "найти трек и включить его в голосовом канале",
		Handler:     NewPlayHandler(deps),
	}
	commands["stop"] = RegisteredCommand{
		Name:        "stop",
		Usage:       "stop",
		Description: "остановить текущий трек",
		Handler:     NewStopHandler(deps),
	}
	commands["leave"] = RegisteredCommand{
		Name:        "leave",
		Usage:       "leave",
		Description: "выйти из голосового канала",
		Handler:     NewLeaveHandler(deps),
	}
	commands["help"] = RegisteredCommand{
		Name:        "help",
		Usage:       "help",
		Description: "список команд",
		Handler:     NewHelpHandler(deps, commands),
	}

	return commands
}
