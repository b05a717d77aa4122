package handlers

import (
	"context"
	"sort"
	"strings"

	"github.com/edgard/lunabot/internal/platform"
)

// NewHelpHandler returns a handler listing commands. It reads commands at call time.
func NewHelpHandler(deps HandlerDeps, commands map[string]RegisteredCommand) CommandFunc {
	return helpHandler{deps: deps, commands: commands}.Handle
}

type helpHandler struct {
	deps     HandlerDeps
	commands map[string]RegisteredCommand
}

func (h helpHandler) Handle(ctx context.Context, ev platform.Event, _ string) {
	log := h.deps.Logger.With("handler", "help")
	log.InfoContext(ctx, "Handling help command", "channel_id", ev.ChannelID, "author_id", ev.AuthorID)

	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	prefix := h.deps.Config.Platform.CommandPrefix
	var sb strings.Builder
	sb.WriteString(h.deps.Config.Messages.HelpHeader)
	for _, name := range names {
		cmd := h.commands[name]
		sb.WriteString("\n" + prefix + cmd.Usage + " - " + cmd.Description)
	}
	sb.WriteString("\n" + h.deps.Config.Bot.DrawTrigger + " <описание> - нарисовать картинку")

	sendText(ctx, h.deps, ev.ChannelID, sb.String())
}
