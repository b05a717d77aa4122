package handlers

import (
	"context"

	"github.com/edgard/lunabot/internal/platform"
)

// NewPlayHandler starts playback of the query in args.
func NewPlayHandler(deps HandlerDeps) CommandFunc {
	return func(ctx context.Context, ev platform.Event, args string) {
		deps.Logger.InfoContext(ctx, "Handling play command", "handler", "play", "guild_id", ev.GuildID, "author_id", ev.AuthorID, "query", args)
		deps.Playback.Play(ctx, ev, args)
	}
}

// NewStopHandler stops the guild's current track.
func NewStopHandler(deps HandlerDeps) CommandFunc {
	return func(ctx context.Context, ev platform.Event, _ string) {
		deps.Logger.InfoContext(ctx, "Handling stop command", "handler", "stop", "guild_id", ev.GuildID)
		deps.Playback.Stop(ctx, ev)
	}
}

// NewLeaveHandler disconnects from the guild's voice channel.
func NewLeaveHandler(deps HandlerDeps) CommandFunc {
	return func(ctx context.Context, ev platform.Event, _ string) {
		deps.Logger.InfoContext(ctx, "Handling leave command", "handler", "leave", "guild_id", ev.GuildID)
		deps.Playback.Leave(ctx, ev)
	}
}
