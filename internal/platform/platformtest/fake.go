// Package platformtest provides in-memory platform fakes for tests.
package platformtest

import (
	"context"
	"os"
	"sync"

	"github.com/edgard/lunabot/internal/platform"
)

// Sent is one outbound message recorded by Client.
type Sent struct {
	ChannelID string
	Text      string
	File      string // attachment path, empty for text messages
	FileData  []byte // attachment contents read at send time
}

// Client is a fake platform.Client.
type Client struct {
	mu sync.Mutex

	identity *platform.Identity
	voice    map[string]string // guildID/userID -> channelID
	sent     []Sent
	conns    []*VoiceConn

	// SendErr, when set, fails every send after recording it.
	SendErr error
	// JoinErr, when set, fails JoinVoice.
	JoinErr error
	// events receives every Play/Stop/Disconnect on voice connections in order.
	events []string
}

var _ platform.Client = (*Client)(nil)

// NewClient returns a fake connected as identity.
func NewClient(identity *platform.Identity) *Client {
	return &Client{identity: identity, voice: make(map[string]string)}
}

func (c *Client) Start(ctx context.Context, _ platform.HandlerFunc) error {
	<-ctx.Done()
	return nil
}

func (c *Client) Self() *platform.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) SetSelf(id *platform.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

// PutInVoice places userID in a voice channel of guildID.
func (c *Client) PutInVoice(guildID, userID, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice[guildID+"/"+userID] = channelID
}

func (c *Client) SendMessage(_ context.Context, channelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{ChannelID: channelID, Text: text})
	return c.SendErr
}

func (c *Client) SendFile(_ context.Context, channelID, caption, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{ChannelID: channelID, Text: caption, File: path, FileData: data})
	return c.SendErr
}

func (c *Client) UserVoiceChannel(guildID, userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.voice[guildID+"/"+userID]
	return ch, ok
}

func (c *Client) JoinVoice(_ context.Context, guildID, channelID string) (platform.VoiceConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.JoinErr != nil {
		return nil, c.JoinErr
	}
	vc := &VoiceConn{client: c, guildID: guildID, channelID: channelID}
	c.conns = append(c.conns, vc)
	c.events = append(c.events, "join:"+channelID)
	return vc, nil
}

// Sent returns a copy of every recorded outbound message.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// EventLog returns a copy of the voice event log.
func (c *Client) EventLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

// Conns returns every voice connection created so far.
func (c *Client) Conns() []*VoiceConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*VoiceConn(nil), c.conns...)
}

func (c *Client) record(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// VoiceConn is a fake platform.VoiceConn.
type VoiceConn struct {
	client  *Client
	guildID string

	mu           sync.Mutex
	channelID    string
	disconnected bool
	streams      []*Stream

	// PlayErr, when set, fails Play.
	PlayErr error
}

func (v *VoiceConn) ChannelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelID
}

func (v *VoiceConn) Move(_ context.Context, channelID string) error {
	v.mu.Lock()
	v.channelID = channelID
	v.mu.Unlock()
	v.client.record("move:" + channelID)
	return nil
}

func (v *VoiceConn) Disconnect(_ context.Context) error {
	v.mu.Lock()
	v.disconnected = true
	v.mu.Unlock()
	v.client.record("disconnect")
	return nil
}

// Disconnected reports whether Disconnect was called.
func (v *VoiceConn) Disconnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disconnected
}

func (v *VoiceConn) Play(path string, done func(err error)) (platform.Stream, error) {
	v.mu.Lock()
	if v.PlayErr != nil {
		err := v.PlayErr
		v.mu.Unlock()
		return nil, err
	}
	s := &Stream{Path: path, done: done, client: v.client}
	v.streams = append(v.streams, s)
	v.mu.Unlock()
	v.client.record("play:" + path)
	return s, nil
}

// Streams returns every stream started on this connection.
func (v *VoiceConn) Streams() []*Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*Stream(nil), v.streams...)
}

// Stream is a fake platform.Stream. It finishes when stopped or when Finish is called.
type Stream struct {
	Path string

	client *Client
	done   func(error)
	once   sync.Once
}

func (s *Stream) Stop() {
	s.client.record("stop:" + s.Path)
	s.Finish(nil)
}

// Finish ends the stream with err from a foreign goroutine, as a real voice connection would.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		go s.done(err)
	})
}
