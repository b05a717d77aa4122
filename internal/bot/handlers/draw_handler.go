package handlers

import (
	"context"
	"strings"

	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/text"
	"github.com/edgard/lunabot/internal/worker"
)

// NewDrawHandler returns the image pipeline. The provider sees only the system turn
// and the templated prompt; the exchange is still recorded in the user's history.
func NewDrawHandler(deps HandlerDeps) platform.HandlerFunc {
	return drawHandler{deps}.Handle
}

type drawHandler struct {
	deps HandlerDeps
}

func (h drawHandler) Handle(ctx context.Context, ev platform.Event) {
	deps := h.deps
	log := deps.Logger.With("handler", "draw", "author_id", ev.AuthorID)

	content := strings.TrimSpace(ev.Content)
	deps.Store.AppendUser(ev.AuthorID, content)

	prompt := strings.ReplaceAll(deps.Config.Bot.DrawTemplate, "{prompt}", content)
	req := llm.Request{
		Turns: []conversation.Turn{deps.Store.System(), conversation.UserTurn(prompt)},
		Image: true,
	}
	log.DebugContext(ctx, "Requesting image", "prompt", prompt)

	worker.Submit(deps.Executor, ctx, "draw",
		func(ctx context.Context) (*llm.Response, error) {
			return deps.Provider.Invoke(ctx, req)
		},
		func(resp *llm.Response, err error) {
			if err != nil {
				log.ErrorContext(ctx, "Image generation failed", "error", err)
				sendError(ctx, deps, ev.ChannelID, err)
				return
			}

			deps.Store.AppendAssistant(ev.AuthorID, resp.Turn())
			if !resp.HasAsset() {
				log.InfoContext(ctx, "Provider answered without an image")
				sendText(ctx, deps, ev.ChannelID, strings.TrimSpace(text.StripMarkers(resp.Text)))
				return
			}
			sendAsset(ctx, deps, ev.ChannelID, resp)
		})
}
