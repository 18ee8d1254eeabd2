/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"
	"maps"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/metrics"
	"github.com/suparena/entitywork/registry"
)

type contextState int32

const (
	stateCreated contextState = iota
	stateStarted
	stateCommitted
	stateRolledBack
	stateClosed
)

func (s contextState) String() string {
	switch s {
	case stateStarted:
		return "started"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled back"
	case stateClosed:
		return "closed"
	default:
		return "created"
	}
}

// Context is a unit of work: one provider per registered factory, a transaction over all of
// them, and a bag of user values. A Context is used by one goroutine at a time; ExecuteAsync
// hands work to a dependent clone instead of sharing it.
type Context struct {
	id      uuid.UUID
	factory *ContextFactory
	parent  *Context
	log     *zap.Logger

	providers []Provider
	names     []string

	cacheMu sync.Mutex
	cache   map[reflect.Type]Provider

	values map[string]any

	state     atomic.Int32
	tx        *Transaction
	dependent *Transaction
}

func newContext(f *ContextFactory, parent *Context, values map[string]any) (*Context, error) {
	if values == nil {
		values = make(map[string]any)
	}
	c := &Context{
		id:      uuid.New(),
		factory: f,
		parent:  parent,
		cache:   make(map[reflect.Type]Provider),
		values:  values,
	}
	c.log = f.Logger().With(zap.Stringer("context", c.id))

	for _, pf := range f.ProviderFactories() {
		p, err := pf.CreateProvider(c)
		if err != nil {
			_ = c.closeProviders()
			return nil, errors.Wrapf(err, "creating %s provider", pf.Name())
		}
		c.providers = append(c.providers, p)
		c.names = append(c.names, pf.Name())
	}
	return c, nil
}

func (c *Context) getState() contextState { return contextState(c.state.Load()) }

func (c *Context) setState(s contextState) { c.state.Store(int32(s)) }

// ID uniquely identifies the Context.
func (c *Context) ID() uuid.UUID { return c.id }

// Factory that created the Context.
func (c *Context) Factory() *ContextFactory { return c.factory }

// Parent is the Context this one was cloned from, or nil.
func (c *Context) Parent() *Context { return c.parent }

// Logger is scoped to the Context.
func (c *Context) Logger() *zap.Logger { return c.log }

// Values is the user-defined bag. Clones receive a shallow copy.
func (c *Context) Values() map[string]any { return c.values }

// Transaction is nil until Start.
func (c *Context) Transaction() *Transaction { return c.tx }

// IsReady reports whether the Context has started and has neither committed nor closed.
func (c *Context) IsReady() bool { return c.getState() == stateStarted }

func (c *Context) String() string { return "context " + c.id.String() }

func (c *Context) notReady(operation string) error {
	return errors.NewNotReadyError(c.String(), operation)
}

type startConfig struct {
	scope  ScopeOption
	txOpts *TxOptions
}

// StartOption configures Context.Start.
type StartOption func(*startConfig)

// WithScope picks between joining the ambient transaction and opening a new one.
func WithScope(scope ScopeOption) StartOption {
	return func(c *startConfig) { c.scope = scope }
}

// WithTxOptions overrides the factory default options of a new root transaction.
func WithTxOptions(opts TxOptions) StartOption {
	return func(c *startConfig) { c.txOpts = &opts }
}

// Start opens the transaction and tells every provider about it. The returned context.Context
// carries both the transaction and the Context, and must be passed to later calls.
func (c *Context) Start(ctx context.Context, opts ...StartOption) (context.Context, error) {
	if s := c.getState(); s != stateCreated {
		return ctx, errors.NewStateError(c.String(), s.String(), "start")
	}
	cfg := startConfig{scope: ScopeRequired}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case c.dependent != nil:
		if cfg.txOpts != nil {
			return ctx, errors.NewValidationError("TxOptions", "a dependent context shares the options of its root transaction")
		}
		c.tx = c.dependent
	case cfg.scope == ScopeRequired:
		if outer, ok := TransactionFromContext(ctx); ok && outer.Active() {
			c.tx = outer.join()
			break
		}
		fallthrough
	default:
		txOpts := c.factory.DefaultTxOptions()
		if cfg.txOpts != nil {
			txOpts = *cfg.txOpts
		}
		c.tx = newTransaction(txOpts)
	}

	for i, p := range c.providers {
		h, ok := p.(TransactionStartedHandler)
		if !ok {
			continue
		}
		if err := h.TransactionStarted(ctx, c.tx); err != nil {
			c.setState(stateRolledBack)
			return ctx, multierr.Append(
				errors.Wrapf(err, "starting %s provider", c.names[i]),
				c.tx.Close(ctx),
			)
		}
	}

	c.setState(stateStarted)
	metrics.RecordContextStarted(c.tx.kind.String())
	c.log.Debug("context started", zap.String("transaction", c.tx.ID()), zap.Stringer("scope", c.tx.kind))
	return WithContext(ContextWithTransaction(ctx, c.tx), c), nil
}

// Commit flushes every provider and completes the transaction. A failed flush rolls back.
func (c *Context) Commit(ctx context.Context) error {
	if !c.IsReady() {
		return c.notReady("commit")
	}
	began := time.Now()
	err := c.commit(ctx)
	metrics.RecordCommit(c.tx.kind.String(), err, time.Since(began))
	return err
}

func (c *Context) commit(ctx context.Context) error {
	for i, p := range c.providers {
		h, ok := p.(TransactionCommittingHandler)
		if !ok {
			continue
		}
		if err := h.TransactionCommitting(ctx); err != nil {
			c.setState(stateRolledBack)
			return multierr.Append(
				errors.Wrapf(err, "flushing %s provider", c.names[i]),
				c.tx.Close(ctx),
			)
		}
	}
	if err := c.tx.Commit(ctx); err != nil {
		c.setState(stateRolledBack)
		return err
	}
	c.setState(stateCommitted)
	c.log.Debug("context committed", zap.String("transaction", c.tx.ID()))
	return nil
}

// Rollback abandons the transaction. For a joined or dependent scope this aborts the root.
func (c *Context) Rollback(ctx context.Context) error {
	if !c.IsReady() {
		return c.notReady("rollback")
	}
	c.setState(stateRolledBack)
	metrics.RecordRollback(c.tx.kind.String())
	return c.tx.Close(ctx)
}

// Close rolls back an uncommitted transaction and closes every provider. It is idempotent.
func (c *Context) Close() error {
	prev := contextState(c.state.Swap(int32(stateClosed)))
	if prev == stateClosed {
		return nil
	}
	if prev == stateStarted {
		metrics.RecordRollback(c.tx.kind.String())
	}

	tx := c.tx
	if tx == nil {
		tx = c.dependent
	}
	var err error
	if tx != nil {
		err = tx.Close(context.Background())
	}
	err = multierr.Append(err, c.closeProviders())
	if err != nil {
		c.log.Warn("context closed with errors", zap.Error(err))
	} else {
		c.log.Debug("context closed")
	}
	return err
}

func (c *Context) closeProviders() error {
	var err error
	for i, p := range c.providers {
		if cerr := p.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "closing %s provider", c.names[i]))
		}
	}
	return err
}

// Clone creates a new Context from the same factory with a copy of the values. A dependent
// clone takes a dependent scope of this Context's transaction, so the root commit waits for it.
func (c *Context) Clone(dependent bool) (*Context, error) {
	if dependent && !c.IsReady() {
		return nil, c.notReady("clone a dependent context")
	}
	child, err := newContext(c.factory, c, maps.Clone(c.values))
	if err != nil {
		return nil, err
	}
	if dependent {
		child.dependent = c.tx.DependentClone()
	}
	return child, nil
}

// ProviderFor returns the provider that takes care of t. The first provider to claim a type
// wins and the answer, a miss included, is cached. Without a match it returns
// NoSuitableProviderError when mustExist is set, and nil otherwise.
func (c *Context) ProviderFor(t reflect.Type, mustExist bool) (Provider, error) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	p, ok := c.cache[t]
	if !ok {
		for _, candidate := range c.providers {
			if candidate.TakesCareOf(t) {
				p = candidate
				break
			}
		}
		// misses are cached as nil
		c.cache[t] = p
	}
	if p != nil {
		return p, nil
	}
	if mustExist {
		return nil, errors.NewNoSuitableProviderError(registry.TypeName(t), c.names)
	}
	return nil, nil
}

func entityTypeOf(entity any) (reflect.Type, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, errors.NewValidationError("entity", "expected a non-nil pointer to a struct, got "+reflect.TypeOf(entity).String())
	}
	return v.Elem().Type(), nil
}

// Add validates entity and registers it with its provider.
func (c *Context) Add(ctx context.Context, entity any) error {
	if !c.IsReady() {
		return c.notReady("add")
	}
	if entity == nil {
		return errors.NewValidationError("entity", "must not be nil")
	}
	t, err := entityTypeOf(entity)
	if err != nil {
		return err
	}
	if err := validateEntity(entity); err != nil {
		return err
	}
	p, err := c.ProviderFor(t, true)
	if err != nil {
		return err
	}
	return p.Add(ctx, entity)
}

// Remove deletes entity through its provider.
func (c *Context) Remove(ctx context.Context, entity any) error {
	if !c.IsReady() {
		return c.notReady("remove")
	}
	if entity == nil {
		return errors.NewValidationError("entity", "must not be nil")
	}
	t, err := entityTypeOf(entity)
	if err != nil {
		return err
	}
	p, err := c.ProviderFor(t, true)
	if err != nil {
		return err
	}
	return p.Remove(ctx, entity)
}

// Get loads the entity of struct type T by id. It returns nil, nil when nothing matches.
func Get[T any](ctx context.Context, c *Context, id any) (*T, error) {
	if !c.IsReady() {
		return nil, c.notReady("get")
	}
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, errors.NewValidationError("T", "expected a struct type, got "+t.String())
	}
	p, err := c.ProviderFor(t, true)
	if err != nil {
		return nil, err
	}
	dest := new(T)
	found, err := p.Get(ctx, dest, id)
	if err != nil || !found {
		return nil, err
	}
	return dest, nil
}

// Fulfill hands q to the provider that takes care of its type.
func (c *Context) Fulfill(ctx context.Context, q any) (any, error) {
	if !c.IsReady() {
		return nil, c.notReady("fulfill")
	}
	if q == nil {
		return nil, errors.NewValidationError("query", "must not be nil")
	}
	p, err := c.ProviderFor(reflect.TypeOf(q), true)
	if err != nil {
		return nil, err
	}
	return p.Fulfill(ctx, q)
}

// Fulfill runs q and asserts the result type, usually a *query.Prepared[T].
func Fulfill[R any](ctx context.Context, c *Context, q any) (R, error) {
	var zero R
	res, err := c.Fulfill(ctx, q)
	if err != nil {
		return zero, err
	}
	r, ok := res.(R)
	if !ok {
		return zero, errors.NewInternalError("query %T yielded %T, expected %s", q, res, reflect.TypeFor[R]())
	}
	return r, nil
}

// CreateQuery asks the provider responsible for Q to create an instance bound to it.
func CreateQuery[Q any](ctx context.Context, c *Context) (Q, error) {
	var zero Q
	if !c.IsReady() {
		return zero, c.notReady("create query")
	}
	t := reflect.TypeFor[Q]()
	p, err := c.ProviderFor(t, true)
	if err != nil {
		return zero, err
	}
	qc, ok := p.(QueryCreator)
	if !ok {
		return zero, errors.NewInternalError("provider %T cannot create queries", p)
	}
	res, err := qc.CreateQuery(ctx, t)
	if err != nil {
		return zero, err
	}
	q, ok := res.(Q)
	if !ok {
		return zero, errors.NewInternalError("provider %T created %T, expected %s", p, res, t)
	}
	return q, nil
}

// Execute runs cmd synchronously within the Context.
func (c *Context) Execute(ctx context.Context, cmd Command) error {
	if !c.IsReady() {
		return c.notReady("execute")
	}
	return cmd.Execute(ctx, c)
}

// Run runs cmd synchronously and returns its result.
func Run[R any](ctx context.Context, c *Context, cmd ResultCommand[R]) (R, error) {
	if !c.IsReady() {
		var zero R
		return zero, c.notReady("execute")
	}
	return cmd.Execute(ctx, c)
}
