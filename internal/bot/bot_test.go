package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/lunabot/internal/bot/handlers"
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/platform/platformtest"
	"github.com/edgard/lunabot/internal/worker"
)

type capturingClient struct {
	*platformtest.Client
	handlers chan platform.HandlerFunc
	startErr error
}

func (c *capturingClient) Start(ctx context.Context, h platform.HandlerFunc) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.handlers <- h
	return c.Client.Start(ctx, h)
}

func newTestBot(client platform.Client, chats chan<- platform.Event) *Bot {
	loop := worker.NewLoop(nil, 8)
	router := NewRouter(nil,
		RouterConfig{ChannelID: "chan", CommandPrefix: "!", DrawTrigger: "нарисуй"},
		client.Self,
		map[string]handlers.RegisteredCommand{},
		func(context.Context, platform.Event) {},
		func(_ context.Context, ev platform.Event) { chats <- ev },
	)
	return NewBot(slog.New(slog.NewTextHandler(io.Discard, nil)), Components{
		Client:   client,
		Loop:     loop,
		Executor: worker.NewExecutor(nil, loop, 2),
		Router:   router,
	})
}

func TestBot_RunDeliversEventsThroughLoop(t *testing.T) {
	t.Parallel()

	client := &capturingClient{
		Client:   platformtest.NewClient(&platform.Identity{ID: "bot"}),
		handlers: make(chan platform.HandlerFunc, 1),
	}
	chats := make(chan platform.Event, 1)
	b := newTestBot(client, chats)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	var handler platform.HandlerFunc
	select {
	case handler = <-client.handlers:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not started")
	}

	ev := platform.Event{MessageID: "1", AuthorID: "u", ChannelID: "chan", Content: "привет"}
	handler(ctx, ev)
	select {
	case got := <-chats:
		assert.Equal(t, ev, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not routed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestBot_RunReturnsClientError(t *testing.T) {
	t.Parallel()

	failure := errors.New("gateway refused")
	client := &capturingClient{
		Client:   platformtest.NewClient(nil),
		startErr: failure,
	}
	b := newTestBot(client, make(chan platform.Event, 1))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
}
