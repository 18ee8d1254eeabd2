/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"
	"sync"

	"github.com/suparena/entitywork/errors"
)

// Accessor reads the ambient Context.
type Accessor interface {
	Current(ctx context.Context) *Context
}

// Holder tracks the ambient Context. SetCurrent refuses to replace a different Context that
// is still ready.
type Holder interface {
	Accessor
	SetCurrent(ctx context.Context, c *Context) (context.Context, error)
}

type contextKey struct{}

// WithContext returns ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the Context carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok && c != nil
}

func checkReplace(existing, next *Context) error {
	if existing != nil && existing != next && existing.IsReady() {
		return errors.NewAmbientConflictError(existing.String())
	}
	return nil
}

// ScopedHolder keeps the current Context on the context.Context chain, so every call chain
// sees its own. It is the default.
type ScopedHolder struct{}

func (ScopedHolder) Current(ctx context.Context) *Context {
	c, _ := FromContext(ctx)
	return c
}

func (h ScopedHolder) SetCurrent(ctx context.Context, c *Context) (context.Context, error) {
	if err := checkReplace(h.Current(ctx), c); err != nil {
		return ctx, err
	}
	return WithContext(ctx, c), nil
}

// SharedHolder keeps one Context for a scope managed by the host, such as a single request,
// regardless of which context.Context asks.
type SharedHolder struct {
	mu      sync.Mutex
	current *Context
}

func NewSharedHolder() *SharedHolder {
	return &SharedHolder{}
}

func (h *SharedHolder) Current(context.Context) *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *SharedHolder) SetCurrent(ctx context.Context, c *Context) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkReplace(h.current, c); err != nil {
		return ctx, err
	}
	h.current = c
	return ctx, nil
}
