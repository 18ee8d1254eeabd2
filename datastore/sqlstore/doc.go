/*
Package sqlstore is the gorm provider, MySQL by default. Each root transaction opens one gorm
transaction that every Context sharing the transaction writes through.

Dynamic queries compile to gorm clauses. A join such as

	q.Get("Boss").Get("Name").Eq("X")

becomes `employees.boss_id IN (SELECT t1.id FROM employees AS t1 WHERE t1.name = ?)`, so an
employee is listed once however many related rows match. Fetch maps to Preload.

Criteria and Raw are native queries:

	prepared, err := entitywork.Fulfill[*query.Prepared[Employee]](ctx, c,
		sqlstore.NewCriteria[Employee]().Where("age > ?", 27))

	rows, err := entitywork.Fulfill[[]AgeGroup](ctx, c,
		sqlstore.NewRaw[AgeGroup]("SELECT age, COUNT(*) AS total FROM employees GROUP BY age"))

Raw types are claimed by the first sql provider bound to a Context.
*/
package sqlstore
