/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"reflect"
	"testing"

	"github.com/suparena/entitywork/datastore/testmodels"
	"github.com/suparena/entitywork/errors"
)

type audited struct {
	CreatedBy string
}

type invoice struct {
	*audited
	Number string `entity:"id"`
	Lines  []string
	Secret string `entity:"-"`
	hidden int
}

func TestDescribeClassifiesProperties(t *testing.T) {
	ti, err := Of[testmodels.Employee]()
	if err != nil {
		t.Fatalf("Of failed: %v", err)
	}

	tests := []struct {
		name       string
		kind       PropertyKind
		target     reflect.Type
		collection bool
	}{
		{name: "Name", kind: Scalar},
		{name: "Age", kind: Scalar},
		{name: "Boss", kind: Relation, target: reflect.TypeFor[testmodels.Employee]()},
		{name: "Vacancies", kind: Collection, target: reflect.TypeFor[testmodels.Vacancy](), collection: true},
		{name: "Skills", kind: Scalar, collection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ti.Property(tt.name)
			if !ok {
				t.Fatalf("property %s not found", tt.name)
			}
			if p.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, p.Kind)
			}
			if p.Target != tt.target {
				t.Errorf("expected target %v, got %v", tt.target, p.Target)
			}
			if p.IsCollection() != tt.collection {
				t.Errorf("expected IsCollection %v", tt.collection)
			}
		})
	}

	if ti.ID == nil || ti.ID.Name != "ID" {
		t.Errorf("expected ID property to be detected, got %+v", ti.ID)
	}
}

func TestDescribeTreatsTextValuesAsScalars(t *testing.T) {
	ti, err := Of[testmodels.Vacancy]()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ti.Property("StartDate")
	if p.Kind != Scalar {
		t.Errorf("time.Time should be scalar, got %v", p.Kind)
	}

	dept, err := Of[testmodels.Department]()
	if err != nil {
		t.Fatal(err)
	}
	founded, _ := dept.Property("FoundedAt")
	if founded.Kind != Scalar {
		t.Errorf("strfmt.DateTime should be scalar, got %v", founded.Kind)
	}
}

func TestDescribeTagsAndEmbedding(t *testing.T) {
	ti, err := Describe(reflect.TypeFor[*invoice]())
	if err != nil {
		t.Fatal(err)
	}
	if ti.ID == nil || ti.ID.Name != "Number" {
		t.Errorf("expected tagged id Number, got %+v", ti.ID)
	}
	if _, ok := ti.Property("Secret"); ok {
		t.Error("entity:\"-\" field should be hidden")
	}
	if _, ok := ti.Property("hidden"); ok {
		t.Error("unexported field should be hidden")
	}

	p, ok := ti.Property("CreatedBy")
	if !ok {
		t.Fatal("promoted field should be visible")
	}
	if _, ok := p.Value(reflect.ValueOf(invoice{})); ok {
		t.Error("value through nil embedded pointer should report false")
	}
	v, ok := p.Value(reflect.ValueOf(invoice{audited: &audited{CreatedBy: "ops"}}))
	if !ok || v.String() != "ops" {
		t.Errorf("expected promoted value ops, got %v", v)
	}
}

func TestDescribeIsCached(t *testing.T) {
	a, _ := Of[testmodels.Employee]()
	b, _ := Describe(reflect.TypeFor[*testmodels.Employee]())
	if a != b {
		t.Error("Describe should return the cached description for pointer and value types")
	}
}

func TestDescribeRejectsNonStruct(t *testing.T) {
	_, err := Describe(reflect.TypeFor[int]())
	if !errors.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestIndexMapRegistry(t *testing.T) {
	RegisterIndexMap[testmodels.Department](map[string]string{"PK": "DEPT#{ID}", "SK": "DEPT#{ID}"})

	m, ok := IndexMapFor(reflect.TypeFor[*testmodels.Department]())
	if !ok || m["PK"] != "DEPT#{ID}" {
		t.Errorf("expected index map for pointer lookup, got %v", m)
	}
	if _, ok := GetIndexMap[testmodels.Vacancy](); ok {
		t.Error("unregistered type should have no index map")
	}
}
