// Package platform defines the chat-platform contract the bot core is written against.
// Concrete transports (Discord, Telegram) live in their own packages.
package platform

import (
	"context"
	"errors"
)

// ErrVoiceUnsupported is returned by clients whose platform has no voice channels.
var ErrVoiceUnsupported = errors.New("voice channels are not supported on this platform")

// Event is an inbound chat message as delivered by the platform.
type Event struct {
	MessageID   string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	IsWebhook   bool // automation identity (webhook, channel post, ...)
	GuildID     string
	ChannelID   string
	Content     string
}

// Identity is the connected bot account.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandlerFunc receives inbound events. It is called on platform goroutines.
type HandlerFunc func(ctx context.Context, ev Event)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Client is the chat platform connection. All methods are safe for concurrent use.
// Send*, JoinVoice and VoiceConn methods other than Play/Stop may block on network I/O.
type Client interface {
	// Start connects, delivers events to handler and blocks until ctx is done.
	Start(ctx context.Context, handler HandlerFunc) error

	// Self returns the connected identity, or nil before the connection is ready.
	Self() *Identity

	SendMessage(ctx context.Context, channelID, text string) error
	SendFile(ctx context.Context, channelID, caption, path string) error

	// UserVoiceChannel reports the voice channel the user currently sits in.
	// It reads cached gateway state and never blocks on the network.
	UserVoiceChannel(guildID, userID string) (string, bool)

	// JoinVoice connects to channelID in guildID, moving an existing connection if needed.
	JoinVoice(ctx context.Context, guildID, channelID string) (VoiceConn, error)
}

// VoiceConn is a live voice connection in one guild.
type VoiceConn interface {
	ChannelID() string
	Move(ctx context.Context, channelID string) error
	Disconnect(ctx context.Context) error

	// Play starts streaming the audio file and returns once the encoder is running.
	// done is invoked exactly once, from a goroutine owned by the connection,
	// when the stream ends, is stopped, or fails.
	Play(path string, done func(err error)) (Stream, error)
}

// Stream is an active audio source on a voice connection.
type Stream interface {
	// Stop halts the source. The Play done callback still fires.
	Stop()
}

// Chain applies middleware so that the first element is the outermost.
func Chain(handler HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}
