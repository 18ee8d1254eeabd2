/*
Package registry describes entity types for entitywork.

Type descriptions:
Describe resolves the exported properties of an entity type once and caches
them. Each property is classified as a scalar, a relation (a struct or pointer
to struct) or a collection (a slice of related entities). Struct types that
marshal as a single value, such as time.Time or strfmt.DateTime, are scalars.

	ti, err := registry.Of[Employee]()
	p, ok := ti.Property("Vacancies") // Kind == Collection, Target == Vacancy

The identity property is the field tagged `entity:"id"`, or the field named ID.
Fields tagged `entity:"-"` are not visible to queries.

Index Map Registry:
Associates Go types with DynamoDB key patterns:

	registry.RegisterIndexMap[Employee](map[string]string{
	    "PK": "EMPLOYEE#{ID}",
	    "SK": "EMPLOYEE#{ID}",
	})

The registry is thread-safe and should be populated during initialization.
*/
package registry
