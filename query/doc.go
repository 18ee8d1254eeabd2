/*
Package query compiles property-path predicates into a tree that storage
providers translate into their native filters.

Building:

	q := query.New[Employee]()
	q.Get("Age").Gt(1).Lt(10)                   // one node, two predicates
	q.Get("Boss").Get("Name").Eq("X")           // join on the Boss relation
	q.Path("Vacancies.StartDate").Gt(since)     // collections resolve against the element type
	q.Set("NameInsensitiveLike", "foo")         // name-pattern assignment
	q.Set("AgeBetween", []int{20, 28})          // exactly two bounds

Set first looks for a property with the exact name (meaning Eq), then splits
the name into a property and the longest trailing operator keyword. Every
predicate in the tree is ANDed; there is no OR and no negation beyond the
null and empty checks.

Errors such as an unknown property do not break the chain. The first one is
kept on the query and reported by Err, and providers refuse to compile a
query that has one.

Executing:

A provider compiles the tree into a Statement and returns it wrapped in a
Prepared. Fetch and OrderBy only accumulate; List, Count, SingleOrDefault and
Paginate each decorate a fresh clone of the statement and flush pending
writes of the unit of work first.

	prepared, err := entitywork.Fulfill[*query.Prepared[Employee]](ctx, c, q)
	page, err := prepared.OrderBy("Name").Paginate(ctx)

Match and Sort define the in-memory meaning of a tree; Evaluated is a
Statement built on them.
*/
package query
