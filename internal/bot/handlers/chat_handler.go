package handlers

import (
	"context"
	"strings"

	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/text"
	"github.com/edgard/lunabot/internal/worker"
)

// NewChatHandler returns the conversational reply pipeline: the whole stored
// history goes to the provider and the answer is appended and sent back.
func NewChatHandler(deps HandlerDeps) platform.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

func (h chatHandler) Handle(ctx context.Context, ev platform.Event) {
	deps := h.deps
	log := deps.Logger.With("handler", "chat", "author_id", ev.AuthorID)

	deps.Store.AppendUser(ev.AuthorID, strings.TrimSpace(ev.Content))
	req := llm.Request{Turns: deps.Store.History(ev.AuthorID)}
	log.DebugContext(ctx, "Requesting reply", "turns", len(req.Turns))

	worker.Submit(deps.Executor, ctx, "chat_reply",
		func(ctx context.Context) (*llm.Response, error) {
			return deps.Provider.Invoke(ctx, req)
		},
		func(resp *llm.Response, err error) {
			if err != nil {
				log.ErrorContext(ctx, "Reply generation failed", "error", err)
				sendError(ctx, deps, ev.ChannelID, err)
				return
			}

			deps.Store.AppendAssistant(ev.AuthorID, resp.Turn())
			if resp.HasAsset() {
				sendAsset(ctx, deps, ev.ChannelID, resp)
				return
			}
			sendText(ctx, deps, ev.ChannelID, strings.TrimSpace(text.StripMarkers(resp.Text)))
		})
}
