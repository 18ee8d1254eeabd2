/*
Package memory is a storage provider keeping committed entities in process memory.

Writes are queued per Context and flushed into a changeset owned by the root transaction, so
joined and dependent Contexts see each other's flushed writes and nothing reaches the Store
before the root commits. Queries are evaluated with query.Match over the visible rows.

	f := memory.NewFactory(memory.WithTypes(reflect.TypeFor[Employee]()))
	factory := entitywork.NewContextFactory(entitywork.WithProviderFactories(f))
*/
package memory
