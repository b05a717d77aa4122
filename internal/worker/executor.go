package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
)

// Executor runs blocking work on at most size goroutines at a time and delivers
// each result back onto the control loop. Submitting never blocks the caller.
// There is no priority or cancellation: submitted work runs to completion.
type Executor struct {
	log  *slog.Logger
	loop Poster
	sem  *semaphore.Weighted
	wg   conc.WaitGroup
}

// NewExecutor creates an executor delivering results through loop.
func NewExecutor(logger *slog.Logger, loop Poster, size int) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	return &Executor{
		log:  logger.With("component", "executor"),
		loop: loop,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Submit runs work on the pool and then calls done(result, err) on the control loop.
// A panic in work is converted into an error. done may be nil.
func Submit[T any](e *Executor, ctx context.Context, name string, work func(context.Context) (T, error), done func(T, error)) {
	SubmitOrDiscard(e, ctx, name, work, done, nil)
}

// SubmitOrDiscard is Submit for results that own resources. When the control loop
// has stopped and done can no longer run, discard(result) is called on the worker
// goroutine instead, so it must only touch state that is safe for concurrent use.
func SubmitOrDiscard[T any](e *Executor, ctx context.Context, name string, work func(context.Context) (T, error), done func(T, error), discard func(T)) {
	e.wg.Go(func() {
		var (
			result T
			err    error
		)

		if err = e.sem.Acquire(ctx, 1); err != nil {
			err = fmt.Errorf("%s: waiting for a worker: %w", name, err)
		} else {
			start := time.Now()
			var pc panics.Catcher
			pc.Try(func() { result, err = work(ctx) })
			e.sem.Release(1)

			if r := pc.Recovered(); r != nil {
				err = fmt.Errorf("%s: %w", name, r.AsError())
			}
			e.log.Debug("Task finished", "task", name, "duration", time.Since(start), "error", err)
		}

		if done == nil {
			return
		}
		if e.loop.Post(func() { done(result, err) }) {
			return
		}
		e.log.Warn("Dropped task result, control loop stopped", "task", name)
		if discard != nil {
			var pc panics.Catcher
			pc.Try(func() { discard(result) })
			if r := pc.Recovered(); r != nil {
				e.log.Error("Recovered panic discarding task result", "task", name, "error", r.AsError())
			}
		}
	})
}

// Go is Submit for work that only reports an error.
func (e *Executor) Go(ctx context.Context, name string, work func(context.Context) error, done func(error)) {
	var cb func(struct{}, error)
	if done != nil {
		cb = func(_ struct{}, err error) { done(err) }
	}
	Submit(e, ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	}, cb)
}

// Wait blocks until every submitted task has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}
