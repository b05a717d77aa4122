// Package telegram implements the platform client for Telegram group chats.
// Telegram bots cannot join voice chats, so voice operations report ErrVoiceUnsupported.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/text"
)

// captionLimit is the Bot API cap on photo captions, well below the message limit.
const captionLimit = 1024

// Client is a platform.Client backed by the Telegram Bot API with long polling.
type Client struct {
	bot     *tgbot.Bot
	log     *slog.Logger
	self    atomic.Pointer[platform.Identity]
	handler atomic.Pointer[platform.HandlerFunc]
}

var _ platform.Client = (*Client)(nil)

// NewClient creates a Telegram client for token. No request is made until Start.
func NewClient(token string, logger *slog.Logger, opts ...tgbot.Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{log: logger.With("component", "telegram_client")}
	opts = append([]tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithDefaultHandler(c.dispatch),
	}, opts...)

	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.bot = b
	return c, nil
}

// Start resolves the bot identity and polls for updates until ctx is done.
func (c *Client) Start(ctx context.Context, handler platform.HandlerFunc) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.self.Store(&platform.Identity{ID: strconv.FormatInt(me.ID, 10), Name: me.Username})
	c.handler.Store(&handler)
	c.log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	c.bot.Start(ctx)
	return nil
}

func (c *Client) dispatch(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	h := c.handler.Load()
	if h == nil {
		return
	}
	ev, ok := updateEvent(update)
	if !ok {
		return
	}
	(*h)(ctx, ev)
}

// updateEvent maps a message update. Posts on behalf of a chat or channel count as automated.
func updateEvent(update *models.Update) (platform.Event, bool) {
	if update == nil || update.Message == nil {
		return platform.Event{}, false
	}
	msg := update.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	ev := platform.Event{
		MessageID: strconv.Itoa(msg.ID),
		GuildID:   chatID,
		ChannelID: chatID,
		Content:   msg.Text,
		IsWebhook: msg.SenderChat != nil,
	}
	if ev.Content == "" {
		ev.Content = msg.Caption
	}
	if msg.From != nil {
		ev.AuthorID = strconv.FormatInt(msg.From.ID, 10)
		ev.AuthorName = msg.From.Username
		ev.AuthorIsBot = msg.From.IsBot
	}
	return ev, true
}

func (c *Client) Self() *platform.Identity {
	return c.self.Load()
}

func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	_, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID(channelID),
		Text:   text,
	})
	if err != nil {
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

	caption, rest := splitCaption(caption)
	_, err = c.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:  chatID(channelID),
		Photo:   &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	for _, chunk := range rest {
		if err := c.SendMessage(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// splitCaption fits caption into a photo caption; whatever does not fit follows as messages.
func splitCaption(caption string) (string, []string) {
	chunks := text.Split(caption, captionLimit)
	if len(chunks) == 0 {
		return "", nil
	}
	return chunks[0], chunks[1:]
}

// UserVoiceChannel reports the chat itself; JoinVoice then fails with ErrVoiceUnsupported.
func (c *Client) UserVoiceChannel(guildID, _ string) (string, bool) {
	return guildID, guildID != ""
}

func (c *Client) JoinVoice(context.Context, string, string) (platform.VoiceConn, error) {
	return nil, platform.ErrVoiceUnsupported
}

// chatID passes numeric ids as integers and anything else (such as @channel) verbatim.
func chatID(channelID string) any {
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return id
	}
	return channelID
}
