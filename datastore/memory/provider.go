/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memory

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/datastore"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
)

type settings struct {
	Name  string `validate:"required"`
	Types int    `validate:"gt=0"`
}

// Factory creates providers over one shared Store.
type Factory struct {
	name      string
	types     *datastore.TypeSet
	store     *Store
	log       *zap.Logger
	addErr    error
	removeErr error
	commitErr error
}

// Option configures a Factory.
type Option func(*Factory)

// WithName overrides the factory name "memory".
func WithName(name string) Option {
	return func(f *Factory) { f.name = name }
}

// WithTypes registers entity types. Interface types claim every implementing entity.
func WithTypes(types ...reflect.Type) Option {
	return func(f *Factory) {
		for _, t := range types {
			f.types.Add(t)
		}
	}
}

// WithStore shares an existing Store, e.g. to inspect committed data in tests.
func WithStore(s *Store) Option {
	return func(f *Factory) { f.store = s }
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		name:  "memory",
		types: datastore.NewTypeSet(),
		store: NewStore(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Name() string { return f.name }

func (f *Factory) Store() *Store { return f.store }

func (f *Factory) Validate() error {
	return entitywork.ValidateConfig(f.name, settings{Name: f.name, Types: f.types.Len()})
}

func (f *Factory) Start(_ context.Context, cf *entitywork.ContextFactory) error {
	f.log = cf.Logger().Named(f.name)
	f.log.Debug("memory store ready")
	return nil
}

func (f *Factory) CreateProvider(c *entitywork.Context) (entitywork.Provider, error) {
	return &Provider{factory: f, log: f.log.With(zap.Stringer("context", c.ID()))}, nil
}

func (f *Factory) Close() error { return nil }

// Provider queues writes of one Context and flushes them into the changeset of its transaction.
type Provider struct {
	factory *Factory
	log     *zap.Logger
	cs      *changeset
	pending datastore.Pending
}

func (p *Provider) TakesCareOf(t reflect.Type) bool {
	if _, ok := query.TargetOf(t); ok && !datastore.IsCompilable(t) {
		return false
	}
	return p.factory.types.TakesCareOf(t)
}

func (p *Provider) TransactionStarted(ctx context.Context, tx *entitywork.Transaction) error {
	res, err := tx.Enlist(ctx, "memory:"+p.factory.name, func(context.Context, entitywork.TxOptions) (entitywork.Resource, error) {
		cs := newChangeset(p.factory.store)
		cs.failure = p.factory.commitErr
		return cs, nil
	})
	if err != nil {
		return err
	}
	p.cs = res.(*changeset)
	return nil
}

func (p *Provider) TransactionCommitting(ctx context.Context) error {
	return p.Flush(ctx)
}

func (p *Provider) enlisted(operation string) error {
	if p.cs == nil {
		return errors.NewStateError(p.factory.name+" provider", "not enlisted", operation)
	}
	return nil
}

func (p *Provider) Add(_ context.Context, entity any) error {
	if err := p.enlisted("add"); err != nil {
		return err
	}
	if p.factory.addErr != nil {
		return p.factory.addErr
	}
	v := reflect.ValueOf(entity)
	t := v.Elem().Type()
	info, err := registry.Describe(t)
	if err != nil {
		return err
	}
	if _, err := datastore.AssignID(info, v, func() int64 { return p.factory.store.next(t) }); err != nil {
		return err
	}
	if id, ok := info.IDValue(v); ok {
		p.factory.store.observe(t, id)
	}
	p.pending.Push(datastore.OpAdd, entity)
	return nil
}

func (p *Provider) Remove(_ context.Context, entity any) error {
	if err := p.enlisted("remove"); err != nil {
		return err
	}
	if p.factory.removeErr != nil {
		return p.factory.removeErr
	}
	p.pending.Push(datastore.OpRemove, entity)
	return nil
}

// Flush moves queued writes into the transaction's changeset.
func (p *Provider) Flush(context.Context) error {
	if err := p.enlisted("flush"); err != nil {
		return err
	}
	n, err := p.pending.Apply(p.apply)
	if n > 0 {
		p.log.Debug("flushed pending writes", zap.Int("ops", n))
	}
	return err
}

func (p *Provider) apply(op datastore.Op) error {
	v := reflect.ValueOf(op.Entity)
	t := v.Elem().Type()
	info, err := registry.Describe(t)
	if err != nil {
		return err
	}
	id, ok := info.IDValue(v)
	if !ok {
		return errors.NewValidationError(info.Name, "entity has no identity field")
	}
	key := datastore.Key(id.Interface())

	switch op.Kind {
	case datastore.OpAdd:
		if existing, ok := p.cs.lookup(t, key); ok && existing != op.Entity {
			return errors.NewAlreadyExistsError(registry.TypeName(t), key)
		}
		p.cs.put(t, key, op.Entity)
	case datastore.OpRemove:
		if _, ok := p.cs.lookup(t, key); !ok {
			return errors.NewNotFoundError(registry.TypeName(t), key)
		}
		p.cs.delete(t, key)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, dest any, id any) (bool, error) {
	if err := p.Flush(ctx); err != nil {
		return false, err
	}
	dv := reflect.ValueOf(dest)
	row, ok := p.cs.lookup(dv.Elem().Type(), datastore.Key(id))
	if !ok {
		return false, nil
	}
	dv.Elem().Set(reflect.ValueOf(row).Elem())
	return true, nil
}

func (p *Provider) Fulfill(_ context.Context, q any) (any, error) {
	if err := p.enlisted("fulfill"); err != nil {
		return nil, err
	}
	c, err := datastore.Compile(q)
	if err != nil {
		return nil, err
	}
	t := c.EntityType()
	st, err := query.NewEvaluated(t, c.Nodes(), func(context.Context) ([]any, error) {
		return p.cs.rows(t), nil
	})
	if err != nil {
		return nil, err
	}
	return c.Prepare(st, query.FlushFunc(p.Flush)), nil
}

func (p *Provider) CreateQuery(_ context.Context, t reflect.Type) (any, error) {
	return datastore.NewQuery(t)
}

func (p *Provider) Close() error {
	if n := len(p.pending.Drain()); n > 0 {
		p.log.Debug("discarding unflushed writes", zap.Int("ops", n))
	}
	p.cs = nil
	return nil
}
