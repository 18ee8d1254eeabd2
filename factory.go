/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/metrics"
)

var (
	currentMu sync.Mutex
	current   *ContextFactory
)

// Current returns the most recently started ContextFactory, or nil.
func Current() *ContextFactory {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// CurrentContext returns the ambient Context of the current factory's holder, or nil.
func CurrentContext(ctx context.Context) *Context {
	f := Current()
	if f == nil {
		return nil
	}
	return f.Holder().Current(ctx)
}

func makeCurrent(f *ContextFactory) {
	currentMu.Lock()
	prev := current
	current = f
	currentMu.Unlock()

	if prev == nil || prev == f {
		return
	}
	f.log.Warn("replacing the current context factory; closing the previous one")
	if err := prev.Close(); err != nil {
		f.log.Warn("closing the previous context factory failed", zap.Error(err))
	}
}

type factoryState int

const (
	factoryConfiguring factoryState = iota
	factoryStarting
	factoryReady
	factoryClosed
)

func (s factoryState) String() string {
	switch s {
	case factoryStarting:
		return "starting"
	case factoryReady:
		return "ready"
	case factoryClosed:
		return "closed"
	default:
		return "configuring"
	}
}

// ContextFactory owns the provider factories and creates Contexts once started.
type ContextFactory struct {
	mu        sync.RWMutex
	factories []ProviderFactory
	holder    Holder
	log       *zap.Logger
	txOptions TxOptions
	state     factoryState
}

// Option configures a ContextFactory.
type Option func(*ContextFactory)

// WithProviderFactories registers provider factories in order of precedence.
func WithProviderFactories(factories ...ProviderFactory) Option {
	return func(f *ContextFactory) { f.factories = append(f.factories, factories...) }
}

// WithHolder replaces the default ScopedHolder.
func WithHolder(h Holder) Option {
	return func(f *ContextFactory) { f.holder = h }
}

// WithLogger sets the logger handed to every Context and provider.
func WithLogger(l *zap.Logger) Option {
	return func(f *ContextFactory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithDefaultTxOptions sets the options of root transactions opened without WithTxOptions.
func WithDefaultTxOptions(opts TxOptions) Option {
	return func(f *ContextFactory) { f.txOptions = opts }
}

func NewContextFactory(opts ...Option) *ContextFactory {
	f := &ContextFactory{
		holder: ScopedHolder{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add registers more provider factories. Earlier factories take precedence in dispatch.
func (f *ContextFactory) Add(factories ...ProviderFactory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != factoryConfiguring {
		return errors.NewStateError("context factory", f.state.String(), "add provider factories")
	}
	for _, pf := range factories {
		if pf == nil || f.contains(pf) {
			continue
		}
		f.factories = append(f.factories, pf)
	}
	return nil
}

func (f *ContextFactory) contains(pf ProviderFactory) bool {
	for _, existing := range f.factories {
		if existing == pf {
			return true
		}
	}
	return false
}

// ProviderFactories returns a copy of the registered factories.
func (f *ContextFactory) ProviderFactories() []ProviderFactory {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ProviderFactory(nil), f.factories...)
}

func (f *ContextFactory) Holder() Holder { return f.holder }

func (f *ContextFactory) Logger() *zap.Logger { return f.log }

func (f *ContextFactory) DefaultTxOptions() TxOptions { return f.txOptions }

// IsReady reports whether Start succeeded and Close has not been called.
func (f *ContextFactory) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state == factoryReady
}

// Validate checks the factory and every provider factory configuration.
func (f *ContextFactory) Validate() error {
	return validateFactories(f.holder, f.ProviderFactories())
}

func validateFactories(holder Holder, factories []ProviderFactory) error {
	if holder == nil {
		return errors.NewConfigurationError("context factory", "Holder", "no holder configured")
	}
	if len(factories) == 0 {
		return errors.NewConfigurationError("context factory", "ProviderFactories", "no provider factories registered")
	}
	seen := make(map[string]bool, len(factories))
	for _, pf := range factories {
		name := pf.Name()
		if seen[name] {
			return errors.NewConfigurationError("context factory", "ProviderFactories", "duplicate provider factory name "+name)
		}
		seen[name] = true
		if err := pf.Validate(); err != nil {
			if errors.IsConfigurationInvalid(err) {
				return err
			}
			return errors.NewConfigurationError(name, "", err.Error())
		}
	}
	return nil
}

// Start validates, then starts every provider factory concurrently. Every failure is reported in
// one StartupError and the factories that did start are closed again. On success the factory
// becomes Current, closing the previous one.
func (f *ContextFactory) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state != factoryConfiguring {
		state := f.state
		f.mu.Unlock()
		return errors.NewStateError("context factory", state.String(), "start")
	}
	if err := validateFactories(f.holder, f.factories); err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = factoryStarting
	factories := append([]ProviderFactory(nil), f.factories...)
	f.mu.Unlock()

	began := time.Now()
	startErrs := make([]error, len(factories))
	var g errgroup.Group
	for i, pf := range factories {
		g.Go(func() error {
			began := time.Now()
			startErrs[i] = pf.Start(ctx, f)
			metrics.RecordFactoryStart(pf.Name(), startErrs[i], time.Since(began))
			return nil
		})
	}
	_ = g.Wait()

	var failures []errors.FactoryFailure
	for i, err := range startErrs {
		if err != nil {
			failures = append(failures, errors.FactoryFailure{Factory: factories[i].Name(), Err: err})
		}
	}
	if len(failures) > 0 {
		for i, pf := range factories {
			if startErrs[i] != nil {
				continue
			}
			if err := pf.Close(); err != nil {
				f.log.Warn("closing provider factory after failed startup", zap.String("factory", pf.Name()), zap.Error(err))
			}
		}
		f.mu.Lock()
		f.state = factoryConfiguring
		f.mu.Unlock()
		return errors.Wrap(&errors.StartupError{Failures: failures}, "starting context factory")
	}

	f.mu.Lock()
	f.state = factoryReady
	f.mu.Unlock()
	makeCurrent(f)

	names := make([]string, len(factories))
	for i, pf := range factories {
		names[i] = pf.Name()
	}
	f.log.Info("context factory started", zap.Strings("providers", names), zap.Duration("took", time.Since(began)))
	return nil
}

// NewContext creates a Context that has not been started.
func (f *ContextFactory) NewContext() (*Context, error) {
	if !f.IsReady() {
		return nil, errors.NewNotReadyError("context factory", "create a context")
	}
	return newContext(f, nil, nil)
}

// StartNewContext creates and starts a Context and makes it the holder's current one. It fails
// with AmbientConflictError while another ready Context is current.
func (f *ContextFactory) StartNewContext(ctx context.Context, opts ...StartOption) (*Context, context.Context, error) {
	if !f.IsReady() {
		return nil, ctx, errors.NewNotReadyError("context factory", "start a new context")
	}
	if err := checkReplace(f.holder.Current(ctx), nil); err != nil {
		return nil, ctx, err
	}
	c, err := f.NewContext()
	if err != nil {
		return nil, ctx, err
	}
	cctx, err := c.Start(ctx, opts...)
	if err != nil {
		return nil, ctx, multierr.Append(err, c.Close())
	}
	cctx, err = f.holder.SetCurrent(cctx, c)
	if err != nil {
		return nil, ctx, multierr.Append(err, c.Close())
	}
	return c, cctx, nil
}

// Close closes every provider factory concurrently. Failures are logged and returned combined.
func (f *ContextFactory) Close() error {
	f.mu.Lock()
	if f.state == factoryClosed {
		f.mu.Unlock()
		return nil
	}
	wasReady := f.state == factoryReady
	f.state = factoryClosed
	factories := append([]ProviderFactory(nil), f.factories...)
	f.mu.Unlock()

	currentMu.Lock()
	if current == f {
		current = nil
	}
	currentMu.Unlock()

	if !wasReady {
		return nil
	}

	closeErrs := make([]error, len(factories))
	var g errgroup.Group
	for i, pf := range factories {
		g.Go(func() error {
			if err := pf.Close(); err != nil {
				f.log.Warn("closing provider factory failed", zap.String("factory", pf.Name()), zap.Error(err))
				closeErrs[i] = errors.Wrapf(err, "closing %s", pf.Name())
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(closeErrs...)
}
