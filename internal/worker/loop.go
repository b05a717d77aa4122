// Package worker provides the bot's single control loop and the bounded pool that
// runs blocking calls off it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
)

// ErrLoopStopped is returned when work is posted to a loop that is no longer running.
var ErrLoopStopped = errors.New("control loop stopped")

// Poster schedules a function onto the control loop.
type Poster interface {
	Post(fn func()) bool
}

// Loop is the single control flow. Every mutation of shared bot state (conversation
// history, playback sessions) happens inside a function run by the loop, so that
// state needs no locks. Other goroutines hand work over with Post.
type Loop struct {
	log      *slog.Logger
	inbox    chan func()
	stopping chan struct{}
	done     chan struct{}

	// mu orders Post against the final drain: once stopped is set no Post succeeds.
	mu      sync.RWMutex
	stopped bool
}

// NewLoop creates a loop whose inbox buffers size pending functions.
func NewLoop(logger *slog.Logger, size int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	return &Loop{
		log:      logger.With("component", "control_loop"),
		inbox:    make(chan func(), size),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Post enqueues fn. It is safe to call from any goroutine except the loop itself,
// and blocks only while the inbox is full. It returns false once the loop stopped;
// a function accepted with true is guaranteed to run.
func (l *Loop) Post(fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return false
	}
	select {
	case l.inbox <- fn:
		return true
	case <-l.stopping:
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After posts fn to the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		if !l.Post(fn) {
			l.log.Debug("Dropped delayed task, loop stopped")
		}
	})
}

// Run executes posted functions one at a time until ctx is done, then runs the
// functions already queued. A panicking function is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Control loop started")
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return nil
		case fn := <-l.inbox:
			l.run(fn)
		}
	}
}

func (l *Loop) drain() {
	close(l.stopping)
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	pending := len(l.inbox)
	for {
		select {
		case fn := <-l.inbox:
			l.run(fn)
		default:
			l.log.Info("Control loop stopped", "drained", pending)
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		l.log.Error("Recovered panic in control loop task", "error", r.AsError())
	}
}
