/*
Package entitywork is a persistence-agnostic unit of work. Application code adds, removes,
loads and queries entities through a Context without knowing which backend stores them.

A ContextFactory owns provider factories, one per backend. Once started it hands out Contexts;
each Context gets one Provider from every factory and dispatches each entity or query type to
the first provider whose TakesCareOf accepts it. The answer is cached per Context.

Lifecycle:

	factory := entitywork.NewContextFactory(
	    entitywork.WithProviderFactories(sqlstore.NewFactory(cfg), memory.NewFactory()),
	    entitywork.WithLogger(log),
	)
	if err := factory.Start(ctx); err != nil { ... }
	defer factory.Close()

	c, ctx, err := factory.StartNewContext(ctx)
	defer c.Close()
	err = c.Add(ctx, &Employee{Name: "Foo"})
	boss, err := entitywork.Get[Employee](ctx, c, 1)

	q := query.New[Employee]().Set("AgeGt", 27)
	prepared, err := entitywork.Fulfill[*query.Prepared[Employee]](ctx, c, q)
	page, err := prepared.OrderBy("Name").Paginate(ctx)

	err = c.Commit(ctx)

Transactions:

Start opens a Transaction and every provider enlists its backend session into it. A Context
started on a context.Context that already carries a transaction joins it unless started with
WithScope(ScopeRequiresNew). ExecuteAsync runs a command on a dependent clone: the clone shares
the backend sessions, and the root commit waits for it and rolls everything back if it failed.

Ambient context:

A Holder tracks the current Context. ScopedHolder, the default, stores it on the
context.Context; SharedHolder keeps one slot for a scope managed by the host. Current and
CurrentContext give process-wide access to the most recently started factory and its
current Context.

Contexts and factories record Prometheus metrics through package metrics.
*/
package entitywork
