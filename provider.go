/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"
	"reflect"
)

// Provider is a backend adapter bound to exactly one Context.
//
// TakesCareOf is asked once per distinct type and the answer is cached by the Context, so it
// must be deterministic. Entity types are passed with pointers stripped; query types as declared.
type Provider interface {
	TakesCareOf(t reflect.Type) bool

	Add(ctx context.Context, entity any) error
	Remove(ctx context.Context, entity any) error
	// Get loads the entity with the given id into dest, a pointer to the entity type.
	// found is false when no such entity exists.
	Get(ctx context.Context, dest any, id any) (found bool, err error)
	// Fulfill compiles and runs a query, returning a *query.Prepared or a materialized result.
	Fulfill(ctx context.Context, query any) (any, error)

	Close() error
}

// ProviderFactory validates backend configuration, is started once, and creates the
// providers of every Context.
type ProviderFactory interface {
	Name() string
	Validate() error
	Start(ctx context.Context, f *ContextFactory) error
	CreateProvider(c *Context) (Provider, error)
	Close() error
}

// TransactionStartedHandler is implemented by providers that open their backend session when
// the Context's transaction starts.
type TransactionStartedHandler interface {
	TransactionStarted(ctx context.Context, tx *Transaction) error
}

// TransactionCommittingHandler is implemented by providers that flush pending writes before commit.
type TransactionCommittingHandler interface {
	TransactionCommitting(ctx context.Context) error
}

// QueryCreator is implemented by providers that can instantiate query types bound to them.
type QueryCreator interface {
	CreateQuery(ctx context.Context, t reflect.Type) (any, error)
}

// Validatable entities are checked by Context.Add.
type Validatable interface {
	Validate() error
}
