/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memory

import (
	"context"
	"reflect"
	"slices"
	"sync"
)

// table keeps rows of one entity type in insertion order.
type table struct {
	keys []string
	rows map[string]any
}

func newTable() *table {
	return &table{rows: make(map[string]any)}
}

func (t *table) put(key string, row any) {
	if _, ok := t.rows[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = row
}

func (t *table) delete(key string) {
	if _, ok := t.rows[key]; !ok {
		return
	}
	delete(t.rows, key)
	t.keys = slices.DeleteFunc(t.keys, func(k string) bool { return k == key })
}

// Store holds the committed entities shared by every provider of one Factory.
type Store struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*table
	seq    map[reflect.Type]int64
}

func NewStore() *Store {
	return &Store{
		tables: make(map[reflect.Type]*table),
		seq:    make(map[reflect.Type]int64),
	}
}

func (s *Store) next(t reflect.Type) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[t]++
	return s.seq[t]
}

// observe moves the sequence past an explicitly assigned integer id.
func (s *Store) observe(t reflect.Type, id reflect.Value) {
	var n int64
	switch {
	case id.CanInt():
		n = id.Int()
	case id.CanUint():
		n = int64(id.Uint())
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.seq[t] {
		s.seq[t] = n
	}
}

func (s *Store) get(t reflect.Type, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tb, ok := s.tables[t]
	if !ok {
		return nil, false
	}
	row, ok := tb.rows[key]
	return row, ok
}

func (s *Store) all(t reflect.Type) ([]string, map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tb, ok := s.tables[t]
	if !ok {
		return nil, nil
	}
	rows := make(map[string]any, len(tb.rows))
	for k, v := range tb.rows {
		rows[k] = v
	}
	return slices.Clone(tb.keys), rows
}

// Count returns the number of committed entities of type t.
func (s *Store) Count(t reflect.Type) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tb, ok := s.tables[t]; ok {
		return len(tb.rows)
	}
	return 0
}

// Clear removes all committed data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[reflect.Type]*table)
	s.seq = make(map[reflect.Type]int64)
}

func (s *Store) apply(cs *changeset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, keys := range cs.deletes {
		if tb, ok := s.tables[t]; ok {
			for key := range keys {
				tb.delete(key)
			}
		}
	}
	for t, puts := range cs.puts {
		tb, ok := s.tables[t]
		if !ok {
			tb = newTable()
			s.tables[t] = tb
		}
		for _, key := range puts.keys {
			tb.put(key, puts.rows[key])
		}
	}
}

// changeset is the enlisted resource of one root transaction: writes flushed by every provider
// taking part in it, applied to the Store on commit.
type changeset struct {
	mu      sync.Mutex
	store   *Store
	puts    map[reflect.Type]*table
	deletes map[reflect.Type]map[string]bool
	failure error
}

func newChangeset(store *Store) *changeset {
	return &changeset{
		store:   store,
		puts:    make(map[reflect.Type]*table),
		deletes: make(map[reflect.Type]map[string]bool),
	}
}

// lookup sees the changeset over the committed data.
func (cs *changeset) lookup(t reflect.Type, key string) (any, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.lookupLocked(t, key)
}

func (cs *changeset) lookupLocked(t reflect.Type, key string) (any, bool) {
	if tb, ok := cs.puts[t]; ok {
		if row, ok := tb.rows[key]; ok {
			return row, true
		}
	}
	if cs.deletes[t][key] {
		return nil, false
	}
	return cs.store.get(t, key)
}

func (cs *changeset) put(t reflect.Type, key string, row any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if d, ok := cs.deletes[t]; ok {
		delete(d, key)
	}
	tb, ok := cs.puts[t]
	if !ok {
		tb = newTable()
		cs.puts[t] = tb
	}
	tb.put(key, row)
}

func (cs *changeset) delete(t reflect.Type, key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if tb, ok := cs.puts[t]; ok {
		tb.delete(key)
	}
	d, ok := cs.deletes[t]
	if !ok {
		d = make(map[string]bool)
		cs.deletes[t] = d
	}
	d[key] = true
}

// rows returns the visible rows of type t: committed order first, then new rows.
func (cs *changeset) rows(t reflect.Type) []any {
	keys, committed := cs.store.all(t)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]any, 0, len(keys))
	for _, key := range keys {
		if row, ok := cs.lookupLocked(t, key); ok {
			out = append(out, row)
		}
	}
	if tb, ok := cs.puts[t]; ok {
		for _, key := range tb.keys {
			if _, seen := committed[key]; !seen {
				out = append(out, tb.rows[key])
			}
		}
	}
	return out
}

func (cs *changeset) Commit(context.Context) error {
	cs.mu.Lock()
	failure := cs.failure
	cs.mu.Unlock()
	if failure != nil {
		return failure
	}
	cs.store.apply(cs)
	return nil
}

func (cs *changeset) Rollback(context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.puts = make(map[reflect.Type]*table)
	cs.deletes = make(map[reflect.Type]map[string]bool)
	return nil
}
