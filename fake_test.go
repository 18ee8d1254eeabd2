/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork_test

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/datastore"
)

type fakeFactory struct {
	name        string
	types       *datastore.TypeSet
	validateErr error
	startErr    error
	started     atomic.Int32
	closed      atomic.Int32

	mu        sync.Mutex
	providers []*fakeProvider
}

func newFakeFactory(name string, types ...reflect.Type) *fakeFactory {
	return &fakeFactory{name: name, types: datastore.NewTypeSet(types...)}
}

func (f *fakeFactory) Name() string    { return f.name }
func (f *fakeFactory) Validate() error { return f.validateErr }

func (f *fakeFactory) Start(context.Context, *entitywork.ContextFactory) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Add(1)
	return nil
}

func (f *fakeFactory) CreateProvider(*entitywork.Context) (entitywork.Provider, error) {
	p := &fakeProvider{factory: f, rows: make(map[string]any)}
	f.mu.Lock()
	f.providers = append(f.providers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeFactory) last() *fakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[len(f.providers)-1]
}

type fakeProvider struct {
	factory    *fakeFactory
	asked      atomic.Int32
	tx         *entitywork.Transaction
	committing atomic.Int32
	closed     atomic.Bool
	rows       map[string]any
}

func (p *fakeProvider) TakesCareOf(t reflect.Type) bool {
	p.asked.Add(1)
	return p.factory.types.TakesCareOf(t)
}

func (p *fakeProvider) TransactionStarted(_ context.Context, tx *entitywork.Transaction) error {
	p.tx = tx
	return nil
}

func (p *fakeProvider) TransactionCommitting(context.Context) error {
	p.committing.Add(1)
	return nil
}

func (p *fakeProvider) Add(_ context.Context, entity any) error {
	p.rows[datastore.Key(reflect.ValueOf(entity).Elem().FieldByName("ID").Interface())] = entity
	return nil
}

func (p *fakeProvider) Remove(_ context.Context, entity any) error {
	delete(p.rows, datastore.Key(reflect.ValueOf(entity).Elem().FieldByName("ID").Interface()))
	return nil
}

func (p *fakeProvider) Get(_ context.Context, dest any, id any) (bool, error) {
	row, ok := p.rows[datastore.Key(id)]
	if !ok {
		return false, nil
	}
	reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(row).Elem())
	return true, nil
}

func (p *fakeProvider) Fulfill(_ context.Context, q any) (any, error) {
	return p.factory.name, nil
}

func (p *fakeProvider) Close() error {
	p.closed.Store(true)
	return nil
}
