/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"

	"go.uber.org/zap"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/metrics"
)

// Command is a unit of application logic run against a Context.
type Command interface {
	Execute(ctx context.Context, c *Context) error
}

// CommandFunc adapts a function to Command.
type CommandFunc func(ctx context.Context, c *Context) error

func (f CommandFunc) Execute(ctx context.Context, c *Context) error { return f(ctx, c) }

// ResultCommand is a Command that produces a value.
type ResultCommand[R any] interface {
	Execute(ctx context.Context, c *Context) (R, error)
}

// ResultFunc adapts a function to ResultCommand.
type ResultFunc[R any] func(ctx context.Context, c *Context) (R, error)

func (f ResultFunc[R]) Execute(ctx context.Context, c *Context) (R, error) { return f(ctx, c) }

// Future is the eventual outcome of an asynchronous command.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the command has committed or failed.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the command finishes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ExecuteAsync runs cmd on a goroutine in a dependent clone of the Context. The clone starts,
// executes, commits and closes on its own; this Context's commit waits for it and rolls back
// if it failed.
func (c *Context) ExecuteAsync(ctx context.Context, cmd Command) *Future[struct{}] {
	return RunAsync[struct{}](ctx, c, ResultFunc[struct{}](func(ctx context.Context, child *Context) (struct{}, error) {
		return struct{}{}, cmd.Execute(ctx, child)
	}))
}

// RunAsync is ExecuteAsync for commands that produce a value. Cancelling ctx does not stop the
// command; use Future.Wait with a deadline to stop waiting.
func RunAsync[R any](ctx context.Context, c *Context, cmd ResultCommand[R]) *Future[R] {
	fut := newFuture[R]()
	var zero R
	if !c.IsReady() {
		fut.resolve(zero, c.notReady("execute asynchronously"))
		return fut
	}
	child, err := c.Clone(true)
	if err != nil {
		fut.resolve(zero, err)
		return fut
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		var (
			value R
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = errors.NewInternalError("command panicked: %v", r)
			}
			if cerr := child.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				child.log.Warn("asynchronous command failed", zap.Error(err))
			}
			metrics.RecordAsyncCommand(err)
			fut.resolve(value, err)
		}()

		var cctx context.Context
		if cctx, err = child.Start(detached); err != nil {
			return
		}
		if value, err = cmd.Execute(cctx, child); err != nil {
			return
		}
		err = child.Commit(cctx)
	}()
	return fut
}
