/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"reflect"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
)

// maxTransactItems is the DynamoDB limit of actions per TransactWriteItems call.
const maxTransactItems = 100

// write is one staged action on an item.
type write struct {
	key    string
	typ    reflect.Type
	id     string
	entity any // nil for deletes
	// replaces is the delete a put superseded, restored when the put is removed again
	replaces *write
	item     types.TransactWriteItem
}

func (w *write) deleted() bool { return w.entity == nil }

// batch stages the writes of one transaction and sends them on commit.
type batch struct {
	client API
	log    *zap.Logger

	mu     sync.Mutex
	writes []*write
	byKey  map[string]*write
}

func newBatch(client API, log *zap.Logger) *batch {
	return &batch{client: client, log: log, byKey: make(map[string]*write)}
}

// put stages a Put. Putting an item already put in this transaction fails; putting an item
// deleted in this transaction replaces it unconditionally.
func (b *batch) put(w *write) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.byKey[w.key]
	if ok && !prev.deleted() {
		return errors.NewAlreadyExistsError(registry.TypeName(w.typ), w.id)
	}
	if ok {
		w.replaces = prev
		w.item.Put.ConditionExpression = nil
		b.replace(prev, w)
		return nil
	}
	b.writes = append(b.writes, w)
	b.byKey[w.key] = w
	return nil
}

// delete stages a Delete. Deleting an item put in this transaction cancels the put.
func (b *batch) delete(w *write) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.byKey[w.key]
	if !ok {
		b.writes = append(b.writes, w)
		b.byKey[w.key] = w
		return nil
	}
	if prev.deleted() {
		return errors.NewNotFoundError(registry.TypeName(w.typ), w.id)
	}
	if prev.replaces != nil {
		b.replace(prev, prev.replaces)
		return nil
	}
	for i, existing := range b.writes {
		if existing == prev {
			b.writes = append(b.writes[:i], b.writes[i+1:]...)
			break
		}
	}
	delete(b.byKey, w.key)
	return nil
}

func (b *batch) replace(old, w *write) {
	for i, existing := range b.writes {
		if existing == old {
			b.writes[i] = w
		}
	}
	b.byKey[w.key] = w
}

// lookup returns the staged write for key, if any.
func (b *batch) lookup(key string) (*write, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.byKey[key]
	return w, ok
}

// staged returns the keys touched in this transaction and the entities put for type t.
func (b *batch) staged(t reflect.Type) (map[string]bool, []any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	touched := make(map[string]bool, len(b.byKey))
	var rows []any
	for _, w := range b.writes {
		touched[w.key] = true
		if w.typ == t && !w.deleted() {
			rows = append(rows, w.entity)
		}
	}
	return touched, rows
}

// Commit sends the staged writes. Beyond maxTransactItems writes the chunks commit one after
// another, so only each chunk is atomic.
func (b *batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	writes := b.writes
	b.writes, b.byKey = nil, make(map[string]*write)
	b.mu.Unlock()

	for start := 0; start < len(writes); start += maxTransactItems {
		chunk := writes[start:min(start+maxTransactItems, len(writes))]
		items := make([]types.TransactWriteItem, len(chunk))
		for i, w := range chunk {
			items[i] = w.item
		}
		_, err := b.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
		if err != nil {
			return b.translate(err, chunk, start)
		}
	}
	if len(writes) > 0 {
		b.log.Debug("committed writes", zap.Int("items", len(writes)))
	}
	return nil
}

// translate maps failed key conditions back to the entity that caused them.
func (b *batch) translate(err error, chunk []*write, start int) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if i >= len(chunk) || aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			w := chunk[i]
			if w.deleted() {
				return errors.NewNotFoundError(registry.TypeName(w.typ), w.id)
			}
			return errors.NewAlreadyExistsError(registry.TypeName(w.typ), w.id)
		}
	}
	if start > 0 {
		b.log.Warn("transaction chunk failed after earlier chunks committed", zap.Int("committed", start))
	}
	return errors.Wrap(err, "writing items")
}

func (b *batch) Rollback(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes, b.byKey = nil, make(map[string]*write)
	return nil
}
