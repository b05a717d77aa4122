package bot

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/edgard/lunabot/internal/bot/handlers"
	"github.com/edgard/lunabot/internal/platform"
)

// Path is the pipeline an inbound event is dispatched to.
type Path int

const (
	PathIgnored Path = iota
	PathCommand
	PathDraw
	PathChat
)

func (p Path) String() string {
	switch p {
	case PathCommand:
		return "command"
	case PathDraw:
		return "draw"
	case PathChat:
		return "chat"
	default:
		return "ignored"
	}
}

// RouterConfig holds the routing rules.
type RouterConfig struct {
	ChannelID     string
	CommandPrefix string
	DrawTrigger   string
}

// Router classifies inbound events and dispatches each to exactly one path.
// Route must run on the control loop.
type Router struct {
	log      *slog.Logger
	cfg      RouterConfig
	self     func() *platform.Identity
	commands map[string]handlers.RegisteredCommand
	draw     platform.HandlerFunc
	chat     platform.HandlerFunc
}

// NewRouter creates a router. self reports the bot's own identity for loop prevention.
func NewRouter(
	logger *slog.Logger,
	cfg RouterConfig,
	self func() *platform.Identity,
	commands map[string]handlers.RegisteredCommand,
	draw, chat platform.HandlerFunc,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.DrawTrigger = strings.ToLower(cfg.DrawTrigger)
	return &Router{
		log:      logger.With("component", "router"),
		cfg:      cfg,
		self:     self,
		commands: commands,
		draw:     draw,
		chat:     chat,
	}
}

// Classify decides the path for ev. For commands it also returns the lowercase
// command name and its arguments.
func (r *Router) Classify(ev platform.Event) (path Path, name, args string) {
	if ev.AuthorIsBot || ev.IsWebhook {
		return PathIgnored, "", ""
	}
	if self := r.self(); self != nil && ev.AuthorID == self.ID {
		return PathIgnored, "", ""
	}

	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return PathIgnored, "", ""
	}

	// Commands win over every content rule and are accepted in any channel.
	if rest, ok := strings.CutPrefix(content, r.cfg.CommandPrefix); ok {
		name, args = splitCommand(rest)
		return PathCommand, name, args
	}

	if ev.ChannelID != r.cfg.ChannelID {
		return PathIgnored, "", ""
	}
	if strings.Contains(strings.ToLower(content), r.cfg.DrawTrigger) {
		return PathDraw, "", ""
	}
	return PathChat, "", ""
}

// Route classifies ev and runs the chosen handler.
func (r *Router) Route(ctx context.Context, ev platform.Event) Path {
	path, name, args := r.Classify(ev)

	switch path {
	case PathCommand:
		cmd, ok := r.commands[name]
		if !ok {
			r.log.DebugContext(ctx, "Ignoring unknown command", "command", name, "author_id", ev.AuthorID)
			return path
		}
		r.log.DebugContext(ctx, "Dispatching command", "command", name, "author_id", ev.AuthorID)
		cmd.Handler(ctx, ev, args)
	case PathDraw:
		r.draw(ctx, ev)
	case PathChat:
		r.chat(ctx, ev)
	default:
		r.log.DebugContext(ctx, "Ignoring event", "message_id", ev.MessageID, "channel_id", ev.ChannelID)
	}
	return path
}

// splitCommand separates the lowercase command name from its arguments.
func splitCommand(s string) (name, args string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s[:i]), strings.TrimSpace(s[i:])
}
