package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/lunabot/internal/audio"
	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/tempfile"
	"github.com/edgard/lunabot/internal/worker"
)

// Scheduler hands work back onto the control loop.
type Scheduler interface {
	Post(fn func()) bool
	After(d time.Duration, fn func())
}

// Deps holds the collaborators of a Controller.
type Deps struct {
	Logger   *slog.Logger
	Client   platform.Client
	Audio    audio.Tool
	Files    *tempfile.Registry
	Executor *worker.Executor
	Loop     Scheduler
	Messages config.MessagesConfig
	// Grace separates stopping an old stream from starting its replacement.
	Grace time.Duration
}

// Controller owns every playback Session. It is not safe for concurrent use:
// call it only from the control loop.
type Controller struct {
	deps     Deps
	log      *slog.Logger
	sessions map[string]*Session
}

// NewController creates a controller with no sessions.
func NewController(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{
		deps:     deps,
		log:      deps.Logger.With("component", "playback"),
		sessions: make(map[string]*Session),
	}
}

// download is the worker-side result of joining voice and fetching a track.
type download struct {
	conn  platform.VoiceConn
	track *audio.Track
}

// Play joins (or moves to) the author's voice channel, downloads query and starts it,
// replacing whatever the guild is playing.
func (c *Controller) Play(ctx context.Context, ev platform.Event, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		c.reply(ctx, ev.ChannelID, c.deps.Messages.PlayUsage)
		return
	}

	voiceChannel, ok := c.deps.Client.UserVoiceChannel(ev.GuildID, ev.AuthorID)
	if !ok {
		c.reply(ctx, ev.ChannelID, c.deps.Messages.NotInVoice)
		return
	}

	s, ok := c.sessions[ev.GuildID]
	if !ok {
		s = &Session{guildID: ev.GuildID}
		c.sessions[ev.GuildID] = s
	}
	c.transition(s, Downloading)

	conn := s.conn
	worker.SubmitOrDiscard(c.deps.Executor, ctx, "play_download",
		func(ctx context.Context) (download, error) {
			var res download
			var err error
			if res.conn, err = c.connect(ctx, ev.GuildID, voiceChannel, conn); err != nil {
				return res, err
			}
			res.track, err = c.deps.Audio.SearchAndDownload(ctx, query)
			return res, err
		},
		func(res download, err error) {
			c.downloaded(ctx, s, ev.ChannelID, res, err)
		},
		func(res download) {
			c.discard(res, conn)
		})
}

// discard cleans up a download whose result arrived after shutdown. It runs on a
// worker, so it only touches the file registry and the connection it made.
func (c *Controller) discard(res download, prev platform.VoiceConn) {
	if res.track != nil {
		c.release(c.deps.Files.Adopt(res.track.Path))
	}
	if res.conn != nil && res.conn != prev {
		if err := res.conn.Disconnect(context.Background()); err != nil {
			c.log.Warn("Voice disconnect failed", "error", err)
		}
	}
}

// connect runs on a worker. It reuses conn when it already sits in channelID.
func (c *Controller) connect(ctx context.Context, guildID, channelID string, conn platform.VoiceConn) (platform.VoiceConn, error) {
	if conn == nil {
		return c.deps.Client.JoinVoice(ctx, guildID, channelID)
	}
	if conn.ChannelID() != channelID {
		if err := conn.Move(ctx, channelID); err != nil {
			return conn, fmt.Errorf("failed to move to voice channel: %w", err)
		}
	}
	return conn, nil
}

func (c *Controller) downloaded(ctx context.Context, s *Session, channelID string, res download, err error) {
	var file *tempfile.Resource
	if res.track != nil {
		file = c.deps.Files.Adopt(res.track.Path)
	}

	if c.sessions[s.guildID] != s {
		c.log.InfoContext(ctx, "Session closed during download, discarding track", "guild_id", s.guildID)
		c.release(file)
		if res.conn != nil && res.conn != s.conn {
			c.disconnect(ctx, res.conn)
		}
		return
	}
	if res.conn != nil {
		s.conn = res.conn
	}

	if err != nil {
		c.release(file)
		if errors.Is(err, platform.ErrVoiceUnsupported) {
			delete(c.sessions, s.guildID)
			c.reply(ctx, channelID, c.deps.Messages.VoiceUnsupported)
			return
		}
		c.log.WarnContext(ctx, "Track download failed", "guild_id", s.guildID, "error", err)
		if s.current != nil {
			// The previous track was never interrupted.
			c.transition(s, Playing)
		} else {
			c.transition(s, Idle)
		}
		c.reply(ctx, channelID, fmt.Sprintf(c.deps.Messages.Error, err))
		return
	}

	next := &track{title: res.track.Title, channelID: channelID, file: file}
	if s.current == nil {
		c.start(ctx, s, next)
		return
	}

	old := s.current
	s.current = nil
	old.stream.Stop()
	c.deps.Loop.After(c.deps.Grace, func() { c.start(ctx, s, next) })
}

// start begins streaming t on the session's connection.
func (c *Controller) start(ctx context.Context, s *Session, t *track) {
	if c.sessions[s.guildID] != s || s.conn == nil {
		c.log.InfoContext(ctx, "Session closed before playback started", "guild_id", s.guildID)
		c.release(t.file)
		return
	}
	if s.current != nil {
		// A concurrent play got here first.
		old := s.current
		s.current = nil
		old.stream.Stop()
	}

	stream, err := s.conn.Play(t.file.Path(), func(err error) {
		if !c.deps.Loop.Post(func() { c.finished(ctx, s, t, err) }) {
			c.release(t.file)
		}
	})
	if err != nil {
		c.release(t.file)
		c.transition(s, Idle)
		c.reply(ctx, t.channelID, fmt.Sprintf(c.deps.Messages.PlaybackError, err))
		return
	}

	t.stream = stream
	s.current = t
	c.transition(s, Playing)
	c.reply(ctx, t.channelID, fmt.Sprintf(c.deps.Messages.NowPlaying, t.title))
}

// finished is the completion path of every stream, natural end or stopped.
func (c *Controller) finished(ctx context.Context, s *Session, t *track, err error) {
	c.release(t.file)
	if err != nil {
		c.log.WarnContext(ctx, "Playback failed", "guild_id", s.guildID, "title", t.title, "error", err)
		c.reply(ctx, t.channelID, fmt.Sprintf(c.deps.Messages.PlaybackError, err))
	}

	// A replaced stream must not touch its successor's state.
	if s.current != t {
		return
	}
	s.current = nil
	if s.state == Playing {
		c.transition(s, Idle)
	}
}

// Stop halts the current stream, including one still audible while its replacement
// downloads. The completion path returns a Playing session to Idle.
func (c *Controller) Stop(ctx context.Context, ev platform.Event) {
	s, ok := c.sessions[ev.GuildID]
	if !ok || s.current == nil {
		c.log.DebugContext(ctx, "Nothing to stop", "guild_id", ev.GuildID)
		return
	}
	s.current.stream.Stop()
}

// Leave stops playback and disconnects from voice.
func (c *Controller) Leave(ctx context.Context, ev platform.Event) {
	s, ok := c.sessions[ev.GuildID]
	if !ok {
		c.log.DebugContext(ctx, "No voice session to leave", "guild_id", ev.GuildID)
		return
	}
	delete(c.sessions, ev.GuildID)

	if s.current != nil {
		s.current.stream.Stop()
	}
	if s.conn != nil {
		c.disconnect(ctx, s.conn)
	}
	c.log.InfoContext(ctx, "Left voice channel", "guild_id", ev.GuildID)
}

// Session returns a view of the guild's session.
func (c *Controller) Session(guildID string) (Info, bool) {
	s, ok := c.sessions[guildID]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// Close stops every stream and disconnects every session. Used on shutdown.
func (c *Controller) Close(ctx context.Context) {
	for guildID := range c.sessions {
		c.Leave(ctx, platform.Event{GuildID: guildID})
	}
}

func (c *Controller) transition(s *Session, to State) {
	if s.state == to {
		return
	}
	c.log.Info("Playback state changed", "guild_id", s.guildID, "from", s.state, "to", to)
	s.state = to
}

func (c *Controller) disconnect(ctx context.Context, conn platform.VoiceConn) {
	c.deps.Executor.Go(ctx, "voice_disconnect", conn.Disconnect, func(err error) {
		if err != nil {
			c.log.WarnContext(ctx, "Voice disconnect failed", "error", err)
		}
	})
}

func (c *Controller) reply(ctx context.Context, channelID, text string) {
	c.deps.Executor.Go(ctx, "send_message", func(ctx context.Context) error {
		return c.deps.Client.SendMessage(ctx, channelID, text)
	}, func(err error) {
		if err != nil {
			c.log.WarnContext(ctx, "Failed to send playback message", "channel_id", channelID, "error", err)
		}
	})
}

func (c *Controller) release(file *tempfile.Resource) {
	if file == nil {
		return
	}
	if err := file.Release(); err != nil {
		c.log.Error("Failed to remove audio file", "path", file.Path(), "error", err)
	}
}
