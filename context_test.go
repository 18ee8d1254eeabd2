/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/suparena/entitywork"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
)

type widget struct {
	ID   int
	Name string `validate:"required"`
}

type gadget struct {
	ID int
}

type checked struct {
	ID    int
	Price int
}

func (c *checked) Validate() error {
	if c.Price < 0 {
		return errors.NewValidationError("Price", "must not be negative")
	}
	return nil
}

func newFactory(t *testing.T, factories ...entitywork.ProviderFactory) *entitywork.ContextFactory {
	t.Helper()
	cf := entitywork.NewContextFactory(
		entitywork.WithProviderFactories(factories...),
		entitywork.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, cf.Start(context.Background()))
	t.Cleanup(func() { _ = cf.Close() })
	return cf
}

func started(t *testing.T, cf *entitywork.ContextFactory) (*entitywork.Context, context.Context) {
	t.Helper()
	c, err := cf.NewContext()
	require.NoError(t, err)
	ctx, err := c.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, ctx
}

func TestDispatchIsCached(t *testing.T) {
	a := newFakeFactory("a", reflect.TypeFor[widget]())
	b := newFakeFactory("b", reflect.TypeFor[gadget](), reflect.TypeFor[checked]())
	cf := newFactory(t, a, b)
	c, ctx := started(t, cf)

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Add(ctx, &gadget{ID: i}))
	}
	assert.Equal(t, int32(1), a.last().asked.Load())
	assert.Equal(t, int32(1), b.last().asked.Load())
	assert.Len(t, b.last().rows, 3)
	assert.Empty(t, a.last().rows)
}

func TestFirstProviderWins(t *testing.T) {
	a := newFakeFactory("a", reflect.TypeFor[widget]())
	b := newFakeFactory("b", reflect.TypeFor[widget]())
	cf := newFactory(t, a, b)
	c, ctx := started(t, cf)

	require.NoError(t, c.Add(ctx, &widget{ID: 1, Name: "w"}))
	assert.Len(t, a.last().rows, 1)
	assert.Empty(t, b.last().rows)
	assert.Zero(t, b.last().asked.Load())
}

func TestNoSuitableProvider(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, ctx := started(t, cf)

	err := c.Add(ctx, &gadget{ID: 1})
	var nsp *errors.NoSuitableProviderError
	require.True(t, errors.As(err, &nsp))
	assert.Equal(t, []string{"a"}, nsp.Providers)

	p, err := c.ProviderFor(reflect.TypeFor[gadget](), false)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestProviderLookupCachesMisses(t *testing.T) {
	a := newFakeFactory("a", reflect.TypeFor[widget]())
	cf := newFactory(t, a)
	c, _ := started(t, cf)
	asked := a.last().asked.Load()

	for range 3 {
		p, err := c.ProviderFor(reflect.TypeFor[gadget](), false)
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, asked+1, a.last().asked.Load())

	_, err := c.ProviderFor(reflect.TypeFor[gadget](), true)
	var nsp *errors.NoSuitableProviderError
	assert.True(t, errors.As(err, &nsp))
	assert.Equal(t, asked+1, a.last().asked.Load())
}

func TestOperationsRequireReadiness(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, err := cf.NewContext()
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"add", func() error { return c.Add(ctx, &widget{Name: "w"}) }},
		{"remove", func() error { return c.Remove(ctx, &widget{}) }},
		{"get", func() error { _, err := entitywork.Get[widget](ctx, c, 1); return err }},
		{"fulfill", func() error { _, err := c.Fulfill(ctx, query.New[widget]()); return err }},
		{"create query", func() error { _, err := entitywork.CreateQuery[*query.Dynamic[widget]](ctx, c); return err }},
		{"execute", func() error { return c.Execute(ctx, entitywork.CommandFunc(nil)) }},
		{"commit", func() error { return c.Commit(ctx) }},
		{"async", func() error { _, err := c.ExecuteAsync(ctx, entitywork.CommandFunc(nil)).Wait(ctx); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.IsNotReady(tt.call()))
		})
	}
}

func TestLifecycle(t *testing.T) {
	a := newFakeFactory("a", reflect.TypeFor[widget]())
	cf := newFactory(t, a)
	c, err := cf.NewContext()
	require.NoError(t, err)
	assert.False(t, c.IsReady())

	ctx, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, c.IsReady())
	assert.Same(t, c.Transaction(), a.last().tx)

	_, err = c.Start(ctx)
	assert.True(t, errors.IsInvalidState(err))

	require.NoError(t, c.Commit(ctx))
	assert.False(t, c.IsReady())
	assert.Equal(t, int32(1), a.last().committing.Load())
	assert.True(t, errors.IsNotReady(c.Add(ctx, &widget{Name: "late"})))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, a.last().closed.Load())
}

func TestGetRoundTrip(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, ctx := started(t, cf)

	require.NoError(t, c.Add(ctx, &widget{ID: 7, Name: "seven"}))
	got, err := entitywork.Get[widget](ctx, c, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "seven", got.Name)

	none, err := entitywork.Get[widget](ctx, c, 8)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAddValidates(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget](), reflect.TypeFor[checked]()))
	c, ctx := started(t, cf)

	assert.True(t, errors.IsValidationError(c.Add(ctx, &widget{ID: 1})))
	assert.True(t, errors.IsValidationError(c.Add(ctx, &checked{Price: -1})))
	assert.True(t, errors.IsValidationError(c.Add(ctx, widget{Name: "by value"})))
	assert.True(t, errors.IsValidationError(c.Add(ctx, nil)))
	assert.NoError(t, c.Add(ctx, &checked{Price: 3}))
}

func TestFulfillDispatchesQueries(t *testing.T) {
	cf := newFactory(t,
		newFakeFactory("widgets", reflect.TypeFor[widget]()),
		newFakeFactory("gadgets", reflect.TypeFor[gadget]()),
	)
	c, ctx := started(t, cf)

	res, err := c.Fulfill(ctx, query.New[gadget]())
	require.NoError(t, err)
	assert.Equal(t, "gadgets", res)

	name, err := entitywork.Fulfill[string](ctx, c, query.New[widget]())
	require.NoError(t, err)
	assert.Equal(t, "widgets", name)

	_, err = entitywork.Fulfill[int](ctx, c, query.New[widget]())
	assert.True(t, errors.IsInternal(err))

	_, err = entitywork.CreateQuery[*query.Dynamic[widget]](ctx, c)
	assert.True(t, errors.IsInternal(err), "fake providers cannot create queries")
}

func TestScopeOptions(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	outer, ctx := started(t, cf)

	joined, err := cf.NewContext()
	require.NoError(t, err)
	defer joined.Close()
	_, err = joined.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, outer.Transaction().ID(), joined.Transaction().ID())
	assert.False(t, joined.Transaction().IsRoot())

	fresh, err := cf.NewContext()
	require.NoError(t, err)
	defer fresh.Close()
	_, err = fresh.Start(ctx, entitywork.WithScope(entitywork.ScopeRequiresNew), entitywork.WithTxOptions(entitywork.TxOptions{ReadOnly: true}))
	require.NoError(t, err)
	assert.NotEqual(t, outer.Transaction().ID(), fresh.Transaction().ID())
	assert.True(t, fresh.Transaction().Options().ReadOnly)

	require.NoError(t, joined.Commit(ctx))
	require.NoError(t, outer.Commit(ctx))
}

func TestAbandonedJoinedContextAbortsOuter(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	outer, ctx := started(t, cf)

	inner, err := cf.NewContext()
	require.NoError(t, err)
	_, err = inner.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, inner.Close())

	assert.True(t, errors.IsTransactionAborted(outer.Commit(ctx)))
}

func TestExecuteAndRun(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, ctx := started(t, cf)

	var seen *entitywork.Context
	require.NoError(t, c.Execute(ctx, entitywork.CommandFunc(func(_ context.Context, got *entitywork.Context) error {
		seen = got
		return nil
	})))
	assert.Same(t, c, seen)

	n, err := entitywork.Run[int](ctx, c, entitywork.ResultFunc[int](func(context.Context, *entitywork.Context) (int, error) {
		return 42, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRunAsyncUsesDependentClone(t *testing.T) {
	a := newFakeFactory("a", reflect.TypeFor[widget]())
	cf := newFactory(t, a)
	c, ctx := started(t, cf)
	c.Values()["tenant"] = "acme"

	fut := entitywork.RunAsync[string](ctx, c, entitywork.ResultFunc[string](func(ctx context.Context, child *entitywork.Context) (string, error) {
		if child == c || child.Parent() != c {
			return "", errors.NewInternalError("expected a clone")
		}
		if cur, _ := entitywork.FromContext(ctx); cur != child {
			return "", errors.NewInternalError("child is not carried by ctx")
		}
		child.Values()["tenant"] = "changed"
		return child.Transaction().ID(), nil
	}))

	<-fut.Done()
	id, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.Transaction().ID(), id)
	assert.Equal(t, "acme", c.Values()["tenant"])
	assert.True(t, a.last().closed.Load(), "the clone closes itself")
	require.NoError(t, c.Commit(ctx))
}

func TestRunAsyncPanicFailsFuture(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, ctx := started(t, cf)

	fut := c.ExecuteAsync(ctx, entitywork.CommandFunc(func(context.Context, *entitywork.Context) error {
		panic("kaboom")
	}))
	_, err := fut.Wait(context.Background())
	assert.True(t, errors.IsInternal(err))
	assert.True(t, errors.IsTransactionAborted(c.Commit(ctx)))
}

func TestFutureWaitHonorsDeadline(t *testing.T) {
	cf := newFactory(t, newFakeFactory("a", reflect.TypeFor[widget]()))
	c, ctx := started(t, cf)

	release := make(chan struct{})
	fut := c.ExecuteAsync(ctx, entitywork.CommandFunc(func(context.Context, *entitywork.Context) error {
		<-release
		return nil
	}))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fut.Wait(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	_, err = fut.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
}
