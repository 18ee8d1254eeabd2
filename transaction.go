/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package entitywork

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/suparena/entitywork/errors"
)

// ScopeOption decides how Start obtains its transaction.
type ScopeOption int

const (
	// ScopeRequired joins the transaction carried by the context.Context, or opens a new one.
	ScopeRequired ScopeOption = iota
	// ScopeRequiresNew always opens a new root transaction.
	ScopeRequiresNew
)

// TxOptions are passed to every resource enlisted in a root transaction.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// SQL converts the options for database/sql based resources.
func (o TxOptions) SQL() *sql.TxOptions {
	return &sql.TxOptions{Isolation: o.Isolation, ReadOnly: o.ReadOnly}
}

// Resource is a backend transaction enlisted in a root transaction.
type Resource interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// OpenFunc opens a resource the first time a key is enlisted.
type OpenFunc func(ctx context.Context, opts TxOptions) (Resource, error)

type txKind int

const (
	rootTx txKind = iota
	joinedTx
	dependentTx
)

func (k txKind) String() string {
	switch k {
	case joinedTx:
		return "joined"
	case dependentTx:
		return "dependent"
	default:
		return "root"
	}
}

// txRoot is the state shared by a root transaction and every scope joined to or depending on it.
type txRoot struct {
	mu        sync.Mutex
	id        string
	opts      TxOptions
	resources map[string]Resource
	order     []string
	abort     error
	finished  bool

	dependents sync.WaitGroup
}

// Transaction is one scope over a root transaction. A root scope commits the enlisted resources;
// a joined scope only votes; a dependent scope must complete before the root may commit.
type Transaction struct {
	root      *txRoot
	kind      txKind
	completed bool
	closed    bool
	release   sync.Once
}

func newTransaction(opts TxOptions) *Transaction {
	return &Transaction{
		root: &txRoot{
			id:        uuid.NewString(),
			opts:      opts,
			resources: make(map[string]Resource),
		},
		kind: rootTx,
	}
}

func (t *Transaction) join() *Transaction {
	return &Transaction{root: t.root, kind: joinedTx}
}

// DependentClone returns a scope the root waits for before committing.
func (t *Transaction) DependentClone() *Transaction {
	t.root.dependents.Add(1)
	return &Transaction{root: t.root, kind: dependentTx}
}

// ID identifies the root transaction; every scope over it shares the id.
func (t *Transaction) ID() string { return t.root.id }

// Options of the root transaction.
func (t *Transaction) Options() TxOptions { return t.root.opts }

// Active reports whether the root transaction has not finished yet and can still be joined.
func (t *Transaction) Active() bool {
	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	return !t.root.finished && !t.closed
}

// IsRoot reports whether this scope owns the commit.
func (t *Transaction) IsRoot() bool { return t.kind == rootTx }

// Enlist returns the resource registered under key, opening it on first use. Every scope of one
// root transaction shares the same resources.
func (t *Transaction) Enlist(ctx context.Context, key string, open OpenFunc) (Resource, error) {
	r := t.root
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil, errors.NewStateError("transaction "+r.id, "finished", "enlist "+key)
	}
	if res, ok := r.resources[key]; ok {
		return res, nil
	}
	res, err := open(ctx, r.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "enlisting %s", key)
	}
	r.resources[key] = res
	r.order = append(r.order, key)
	return res, nil
}

// Commit completes the scope. For a root it waits for every dependent scope, then commits the
// enlisted resources in enlistment order, or rolls them all back when any scope aborted.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.closed || t.completed {
		return errors.NewStateError("transaction "+t.root.id, t.kind.String()+" scope already finished", "commit")
	}
	t.completed = true

	switch t.kind {
	case dependentTx:
		t.release.Do(t.root.dependents.Done)
		return nil
	case joinedTx:
		return nil
	}

	t.root.dependents.Wait()
	return t.root.commit(ctx)
}

// Close ends the scope. An uncompleted root rolls back; an uncompleted joined or dependent scope
// aborts the root.
func (t *Transaction) Close(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true

	switch t.kind {
	case dependentTx:
		if !t.completed {
			t.root.markAborted(errors.Wrapf(errors.ErrTransactionAborted, "dependent scope of %s closed without commit", t.root.id))
		}
		t.release.Do(t.root.dependents.Done)
		return nil
	case joinedTx:
		if !t.completed {
			t.root.markAborted(errors.Wrapf(errors.ErrTransactionAborted, "joined scope of %s closed without commit", t.root.id))
		}
		return nil
	}

	if t.completed {
		return nil
	}
	return t.root.rollback(ctx)
}

func (r *txRoot) markAborted(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abort == nil {
		r.abort = cause
	}
}

func (r *txRoot) commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return errors.NewStateError("transaction "+r.id, "finished", "commit")
	}
	r.finished = true

	if r.abort != nil {
		return multierr.Append(r.abort, r.rollbackLocked(ctx, 0))
	}
	for i, key := range r.order {
		if err := r.resources[key].Commit(ctx); err != nil {
			err = errors.Wrapf(err, "committing %s", key)
			return multierr.Append(err, r.rollbackLocked(ctx, i+1))
		}
	}
	return nil
}

func (r *txRoot) rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil
	}
	r.finished = true
	return r.rollbackLocked(ctx, 0)
}

func (r *txRoot) rollbackLocked(ctx context.Context, from int) error {
	var err error
	for _, key := range r.order[from:] {
		if rerr := r.resources[key].Rollback(ctx); rerr != nil {
			err = multierr.Append(err, errors.Wrapf(rerr, "rolling back %s", key))
		}
	}
	return err
}

type txKey struct{}

// ContextWithTransaction returns ctx carrying tx, so a later Start with ScopeRequired joins it.
func ContextWithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TransactionFromContext returns the transaction carried by ctx, if any.
func TransactionFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Transaction)
	return tx, ok && tx != nil
}
