package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/lunabot/internal/text"
)

// sendText delivers s as ordered chunks from a single worker job, so one reply is
// never interleaved with itself.
func sendText(ctx context.Context, deps HandlerDeps, channelID, s string) {
	chunks := text.Split(s, deps.Config.Bot.MaxMessageLength)
	if len(chunks) == 0 {
		deps.Logger.DebugContext(ctx, "Skipping empty reply", "channel_id", channelID)
		return
	}

	deps.Executor.Go(ctx, "send_message", func(ctx context.Context) error {
		for i, chunk := range chunks {
			if err := deps.Client.SendMessage(ctx, channelID, chunk); err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
		}
		return nil
	}, func(err error) {
		if err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to send reply", "channel_id", channelID, "error", err)
		}
	})
}

// sendError reports err to the channel using the configured error template.
func sendError(ctx context.Context, deps HandlerDeps, channelID string, err error) {
	sendText(ctx, deps, channelID, fmt.Sprintf(deps.Config.Messages.Error, err))
}
