/*
Package ddb provides a DynamoDB provider for single-table designs.

Every entity type registers an index map of key templates. Macros are filled from the
entity's attributes; each item also carries an EntityType attribute so many types share
one table:

	registry.RegisterIndexMap[Employee](map[string]string{
	    "PK":     "EMPLOYEE#{ID}",   // Becomes "EMPLOYEE#42"
	    "SK":     "EMPLOYEE#{ID}",
	    "GSI1PK": "{Name}",          // Written alongside the item
	})

	factory := ddb.NewFactory(cfg.DynamoDB, ddb.WithTypes(reflect.TypeFor[Employee]()))

Writes are staged per transaction and sent with TransactWriteItems when it commits. Adds
carry attribute_not_exists(PK) and removes attribute_exists(PK), so a duplicate add fails
with AlreadyExists and removing a missing item with NotFound.

Dynamic queries compile to a Scan filter. Relations stored as nested documents are
filtered by path. Predicates with no filter form, such as joins on collections, suffix
matching and case-insensitive matching, stay out of the expression and are checked against
each scanned row in memory. Ordering and windowing also happen in memory after the scan,
paged according to storagemodels.ScanOptions.
*/
package ddb
