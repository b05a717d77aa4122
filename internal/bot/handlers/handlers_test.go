package handlers_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/lunabot/internal/audio"
	"github.com/edgard/lunabot/internal/bot"
	"github.com/edgard/lunabot/internal/bot/handlers"
	"github.com/edgard/lunabot/internal/config"
	"github.com/edgard/lunabot/internal/conversation"
	"github.com/edgard/lunabot/internal/llm"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/platform/platformtest"
	"github.com/edgard/lunabot/internal/playback"
	"github.com/edgard/lunabot/internal/tempfile"
	"github.com/edgard/lunabot/internal/worker"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nimage")

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(req llm.Request) (*llm.Response, error)
	assets   map[string]*llm.Asset
}

func (p *fakeProvider) Invoke(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	respond := p.respond
	p.mu.Unlock()
	return respond(req)
}

func (p *fakeProvider) RetrieveFile(_ context.Context, id string) (*llm.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.assets[id]
	if !ok {
		return nil, llm.ErrAssetNotFound
	}
	return a, nil
}

func (p *fakeProvider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

type noAudio struct{}

func (noAudio) SearchAndDownload(context.Context, string) (*audio.Track, error) {
	return nil, audio.ErrNoResults
}

type harness struct {
	t        *testing.T
	loop     *worker.Loop
	cfg      *config.Config
	client   *platformtest.Client
	provider *fakeProvider
	store    *conversation.Store
	files    *tempfile.Registry
	ctrl     *playback.Controller
	router   *bot.Router
}

func newHarness(t *testing.T, provider *fakeProvider) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	loop := worker.NewLoop(nil, 64)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx)
	}()
	exec := worker.NewExecutor(nil, loop, 4)
	t.Cleanup(func() {
		cancel()
		<-stopped
		exec.Wait()
	})

	files, err := tempfile.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Platform: config.PlatformConfig{ChannelID: "chan", CommandPrefix: "!"},
		Bot: config.BotConfig{
			SystemPrompt:     "Ты дерзкая богиня луны.",
			MaxHistory:       30,
			DrawTrigger:      "нарисуй",
			DrawTemplate:     "Сгенерируй картинку: {prompt}",
			MaxMessageLength: 2000,
		},
		Messages: config.DefaultMessages,
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := platformtest.NewClient(&platform.Identity{ID: "bot", Name: "luna"})
	store := conversation.NewStore(cfg.Bot.SystemPrompt, cfg.Bot.MaxHistory)
	ctrl := playback.NewController(playback.Deps{
		Logger: log, Client: client, Audio: noAudio{}, Files: files,
		Executor: exec, Loop: loop, Messages: cfg.Messages,
	})

	deps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Provider: provider,
		Client:   client,
		Executor: exec,
		Files:    files,
		Playback: ctrl,
	}
	router := bot.NewRouter(log,
		bot.RouterConfig{ChannelID: cfg.Platform.ChannelID, CommandPrefix: cfg.Platform.CommandPrefix, DrawTrigger: cfg.Bot.DrawTrigger},
		client.Self,
		handlers.RegisterAllCommands(deps),
		handlers.NewDrawHandler(deps),
		handlers.NewChatHandler(deps),
	)

	return &harness{t: t, loop: loop, cfg: cfg, client: client, provider: provider, store: store, files: files, ctrl: ctrl, router: router}
}

func (h *harness) send(author, channel, content string) bot.Path {
	h.t.Helper()
	var path bot.Path
	ev := platform.Event{MessageID: "m", AuthorID: author, ChannelID: channel, GuildID: "g1", Content: content}
	require.NoError(h.t, h.loop.Call(context.Background(), func() { path = h.router.Route(context.Background(), ev) }))
	return path
}

func (h *harness) history(user string) []conversation.Turn {
	var turns []conversation.Turn
	_ = h.loop.Call(context.Background(), func() { turns = h.store.History(user) })
	return turns
}

func (h *harness) users() int {
	var n int
	_ = h.loop.Call(context.Background(), func() { n = h.store.Users() })
	return n
}

func (h *harness) waitSent(n int) []platformtest.Sent {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.client.Sent()) >= n }, waitFor, tick, "expected %d sent messages", n)
	return h.client.Sent()
}

func (h *harness) waitDirEmpty() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		entries, err := os.ReadDir(h.files.Dir())
		return err == nil && len(entries) == 0 && h.files.Live() == 0
	}, waitFor, tick, "temp dir not empty")
}

func textReply(s string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: s}, nil
	}
}

func imageReply(id, caption string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Text:    caption + ` <img src="` + id + `" fuse="true"/>`,
			AssetID: id,
			Caption: caption,
		}, nil
	}
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		assets: map[string]*llm.Asset{"cat": {Data: base64.StdEncoding.EncodeToString(pngBytes), MIMEType: "image/png"}},
	}
	provider.respond = func(req llm.Request) (*llm.Response, error) {
		if req.Image {
			return imageReply("cat", "Вот твой кот")(req)
		}
		return textReply("Привет, смертный.")(req)
	}
	h := newHarness(t, provider)

	// User A outside the configured channel is ignored.
	assert.Equal(t, bot.PathIgnored, h.send("A", "elsewhere", "hello"))
	assert.Zero(t, h.users())

	// User B gets a single reply chunk and two new turns.
	assert.Equal(t, bot.PathChat, h.send("B", "chan", "hello"))
	sent := h.waitSent(1)
	assert.Equal(t, platformtest.Sent{ChannelID: "chan", Text: "Привет, смертный."}, sent[0])
	turns := h.history("B")
	require.Len(t, turns, 3)
	assert.Equal(t, conversation.RoleSystem, turns[0].Role)
	assert.Equal(t, conversation.UserTurn("hello"), turns[1])
	assert.Equal(t, conversation.RoleAssistant, turns[2].Role)

	// User C asks for a drawing and gets an attachment; the file is gone afterwards.
	assert.Equal(t, bot.PathDraw, h.send("C", "chan", "нарисуй кота"))
	sent = h.waitSent(2)
	assert.Equal(t, "Вот твой кот", sent[1].Text)
	assert.Equal(t, pngBytes, sent[1].FileData)
	assert.True(t, strings.HasSuffix(sent[1].File, ".png"))
	h.waitDirEmpty()

	// User D is not in a voice channel.
	assert.Equal(t, bot.PathCommand, h.send("D", "chan", "!play lofi beats"))
	sent = h.waitSent(3)
	assert.Equal(t, config.DefaultMessages.NotInVoice, sent[2].Text)
	var ok bool
	require.NoError(t, h.loop.Call(context.Background(), func() { _, ok = h.ctrl.Session("g1") }))
	assert.False(t, ok)
}

func TestChat_LongReplyIsChunkedInOrder(t *testing.T) {
	t.Parallel()

	reply := strings.Repeat("луна ", 30) + "\n" + strings.Repeat("x", 25)
	h := newHarness(t, &fakeProvider{respond: textReply(reply)})
	h.cfg.Bot.MaxMessageLength = 20

	h.send("u", "chan", "расскажи")
	require.Eventually(t, func() bool {
		var b strings.Builder
		for _, s := range h.client.Sent() {
			b.WriteString(s.Text)
		}
		return b.String() == strings.TrimSpace(reply)
	}, waitFor, tick)

	sent := h.client.Sent()
	assert.Greater(t, len(sent), 1)
	for _, s := range sent {
		assert.LessOrEqual(t, len([]rune(s.Text)), 20)
	}
}

func TestChat_SendsWholeHistory(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{respond: textReply("ok")}
	h := newHarness(t, provider)

	h.send("u", "chan", "first")
	h.waitSent(1)
	h.send("u", "chan", "second")
	h.waitSent(2)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Turns, 4)
	assert.Equal(t, "second", reqs[1].Turns[3].Text)
	assert.False(t, reqs[1].Image)
}

func TestChat_ProviderErrorKeepsUserTurn(t *testing.T) {
	t.Parallel()

	failure := errors.New("provider down")
	h := newHarness(t, &fakeProvider{respond: func(llm.Request) (*llm.Response, error) { return nil, failure }})

	h.send("u", "chan", "hello")
	sent := h.waitSent(1)
	assert.Equal(t, fmt.Sprintf(config.DefaultMessages.Error, failure), sent[0].Text)

	turns := h.history("u")
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.UserTurn("hello"), turns[1])
}

func TestChat_StripsStrayMarkers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeProvider{respond: textReply(`text <img src="x" fuse="true"/> more`)})

	h.send("u", "chan", "hello")
	sent := h.waitSent(1)
	assert.Equal(t, "text  more", sent[0].Text)
}

func TestChat_ReplyWithImage(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: imageReply("img", "держи"),
		assets:  map[string]*llm.Asset{"img": {Data: base64.StdEncoding.EncodeToString(pngBytes), MIMEType: "image/jpeg"}},
	}
	h := newHarness(t, provider)

	h.send("u", "chan", "пришли луну")
	sent := h.waitSent(1)
	assert.Equal(t, "держи", sent[0].Text)
	assert.True(t, strings.HasSuffix(sent[0].File, ".jpg"))
	h.waitDirEmpty()
}

func TestDraw_UsesOneShotPrompt(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		assets: map[string]*llm.Asset{"cat": {Data: base64.StdEncoding.EncodeToString(pngBytes), MIMEType: "image/png"}},
	}
	provider.respond = func(req llm.Request) (*llm.Response, error) {
		if req.Image {
			return imageReply("cat", "")(req)
		}
		return textReply("ok")(req)
	}
	h := newHarness(t, provider)

	h.send("u", "chan", "hello")
	h.waitSent(1)
	h.send("u", "chan", "Нарисуй кота")
	sent := h.waitSent(2)
	assert.Empty(t, sent[1].Text)
	assert.NotEmpty(t, sent[1].File)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	draw := reqs[1]
	assert.True(t, draw.Image)
	require.Len(t, draw.Turns, 2)
	assert.Equal(t, conversation.RoleSystem, draw.Turns[0].Role)
	assert.Equal(t, "Сгенерируй картинку: Нарисуй кота", draw.Turns[1].Text)

	assert.Len(t, h.history("u"), 5)
	h.waitDirEmpty()
}

func TestDraw_WithoutAssetSendsText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeProvider{respond: textReply("Не могу нарисовать.")})

	h.send("u", "chan", "нарисуй невозможное")
	sent := h.waitSent(1)
	assert.Equal(t, "Не могу нарисовать.", sent[0].Text)
	assert.Empty(t, sent[0].File)
}

func TestDraw_DecodeFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: imageReply("bad", "caption"),
		assets:  map[string]*llm.Asset{"bad": {Data: "%%% not base64 %%%", MIMEType: "image/png"}},
	}
	h := newHarness(t, provider)

	h.send("u", "chan", "нарисуй кота")
	sent := h.waitSent(1)
	assert.Equal(t, config.DefaultMessages.ImageDecodeError, sent[0].Text)
	assert.Empty(t, sent[0].File)
	h.waitDirEmpty()
}

func TestDraw_SendFailureStillRemovesFile(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: imageReply("cat", "caption"),
		assets:  map[string]*llm.Asset{"cat": {Data: base64.StdEncoding.EncodeToString(pngBytes), MIMEType: "image/png"}},
	}
	h := newHarness(t, provider)
	h.client.SendErr = errors.New("discord down")

	h.send("u", "chan", "нарисуй кота")
	h.waitSent(1)
	h.waitDirEmpty()
}

func TestDraw_AssetMissing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeProvider{respond: imageReply("gone", "caption")})

	h.send("u", "chan", "нарисуй кота")
	sent := h.waitSent(1)
	assert.Contains(t, sent[0].Text, llm.ErrAssetNotFound.Error())
	h.waitDirEmpty()
}

func TestDraw_LongCaptionFollowsAsText(t *testing.T) {
	t.Parallel()

	caption := strings.Repeat("a", 15) + " " + strings.Repeat("b", 15)
	provider := &fakeProvider{
		respond: imageReply("cat", caption),
		assets:  map[string]*llm.Asset{"cat": {Data: base64.StdEncoding.EncodeToString(pngBytes), MIMEType: "image/png"}},
	}
	h := newHarness(t, provider)
	h.cfg.Bot.MaxMessageLength = 20

	h.send("u", "chan", "нарисуй кота")
	sent := h.waitSent(2)
	assert.NotEmpty(t, sent[0].File)
	assert.Equal(t, strings.Repeat("a", 15)+" ", sent[0].Text)
	assert.Equal(t, strings.Repeat("b", 15), sent[1].Text)
	assert.Empty(t, sent[1].File)
}

func TestHelpCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeProvider{respond: textReply("unused")})

	assert.Equal(t, bot.PathCommand, h.send("u", "elsewhere", "!help"))
	sent := h.waitSent(1)
	assert.True(t, strings.HasPrefix(sent[0].Text, config.DefaultMessages.HelpHeader))
	for _, name := range []string{"!play", "!stop", "!leave", "!help"} {
		assert.Contains(t, sent[0].Text, name)
	}
	assert.Empty(t, h.provider.Requests())
}

func TestCommandNeverReachesPipelines(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeProvider{respond: textReply("unused")})

	h.send("u", "chan", "!stop нарисуй кота")
	h.send("u", "chan", "!unknown hello")

	assert.Empty(t, h.provider.Requests())
	assert.Zero(t, h.users())
}
