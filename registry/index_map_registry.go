/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"reflect"
	"sync"
)

// Index maps associate an entity type with its DynamoDB key templates (PK, SK, GSI keys).

var (
	indexMapRegistry = make(map[reflect.Type]map[string]string)
	mu               sync.RWMutex
)

// RegisterIndexMap associates a Go type T with a given DynamoDB index map (PK, SK, etc.).
func RegisterIndexMap[T any](idxMap map[string]string) {
	RegisterIndexMapFor(reflect.TypeFor[T](), idxMap)
}

// RegisterIndexMapFor is RegisterIndexMap for a runtime type. Pointer types register their element.
func RegisterIndexMapFor(t reflect.Type, idxMap map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	indexMapRegistry[Indirect(t)] = idxMap
}

// GetIndexMap retrieves the indexMap for type T, if any.
func GetIndexMap[T any]() (map[string]string, bool) {
	return IndexMapFor(reflect.TypeFor[T]())
}

// IndexMapFor retrieves the indexMap registered for t or its element type.
func IndexMapFor(t reflect.Type) (map[string]string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := indexMapRegistry[Indirect(t)]
	return m, ok
}
