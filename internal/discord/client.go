// Package discord implements the platform client on top of the Discord gateway,
// including voice connections streamed through an Opus encoder.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"

	"github.com/edgard/lunabot/internal/platform"
)

// Intents are the gateway intents the bot needs: guild messages with content and voice state.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentMessageContent

// Client is a platform.Client backed by a discordgo session.
type Client struct {
	session *discordgo.Session
	log     *slog.Logger
	self    atomic.Pointer[platform.Identity]
	bitrate int
}

var _ platform.Client = (*Client)(nil)

// NewClient creates a Discord client for token. The gateway is not opened until Start.
func NewClient(token string, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true

	return &Client{
		session: s,
		log:     logger.With("component", "discord_client"),
		bitrate: 96,
	}, nil
}

// Start opens the gateway, delivers messages to handler and closes the session when ctx is done.
func (c *Client) Start(ctx context.Context, handler platform.HandlerFunc) error {
	removeReady := c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			return
		}
		c.self.Store(&platform.Identity{ID: r.User.ID, Name: r.User.Username})
		c.log.Info("Connected to Discord", "bot_id", r.User.ID, "bot_username", r.User.Username, "guilds", len(r.Guilds))
	})
	defer removeReady()

	removeMessage := c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil {
			return
		}
		handler(ctx, messageEvent(m))
	})
	defer removeMessage()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	c.log.Info("Discord gateway opened")

	<-ctx.Done()

	c.log.Info("Closing Discord gateway...")
	if err := c.session.Close(); err != nil {
		c.log.Warn("Error closing Discord gateway", "error", err)
	}
	return nil
}

func messageEvent(m *discordgo.MessageCreate) platform.Event {
	return platform.Event{
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		AuthorIsBot: m.Author.Bot,
		IsWebhook:   m.WebhookID != "",
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
	}
}

func (c *Client) Self() *platform.Identity {
	return c.self.Load()
}

func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) SendFile(ctx context.Context, channelID, caption, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	msg := &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Reader:      f,
		}},
	}
	if _, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send attachment: %w", err)
	}
	return nil
}

func (c *Client) UserVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := c.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

func (c *Client) JoinVoice(ctx context.Context, guildID, channelID string) (platform.VoiceConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}
	c.log.Info("Joined voice channel", "guild_id", guildID, "channel_id", channelID)
	return &voiceConn{vc: vc, log: c.log, channelID: channelID, bitrate: c.bitrate}, nil
}

type voiceConn struct {
	vc      *discordgo.VoiceConnection
	log     *slog.Logger
	bitrate int

	mu        sync.Mutex
	channelID string
}

func (v *voiceConn) ChannelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelID
}

func (v *voiceConn) Move(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.vc.ChangeChannel(channelID, false, true); err != nil {
		return fmt.Errorf("failed to move to voice channel %s: %w", channelID, err)
	}
	v.mu.Lock()
	v.channelID = channelID
	v.mu.Unlock()
	return nil
}

func (v *voiceConn) Disconnect(_ context.Context) error {
	if err := v.vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect voice: %w", err)
	}
	return nil
}

// Play encodes path with ffmpeg into Opus frames and streams them to the connection.
func (v *voiceConn) Play(path string, done func(err error)) (platform.Stream, error) {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Bitrate = v.bitrate
	opts.Application = dca.AudioApplicationLowDelay

	enc, err := dca.EncodeFile(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	if err := v.vc.Speaking(true); err != nil {
		v.log.Debug("Failed to set speaking state", "error", err)
	}

	finished := make(chan error, 1)
	dca.NewStream(enc, v.vc, finished)

	s := &stream{enc: enc}
	go func() {
		err := <-finished
		enc.Cleanup()
		if err := v.vc.Speaking(false); err != nil {
			v.log.Debug("Failed to clear speaking state", "error", err)
		}
		if errors.Is(err, io.EOF) || s.stopped.Load() {
			err = nil
		}
		done(err)
	}()
	return s, nil
}

type stream struct {
	enc     *dca.EncodeSession
	stopped atomic.Bool
}

// Stop kills the encoder; the stream then drains and reports completion.
func (s *stream) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	_ = s.enc.Stop()
}
