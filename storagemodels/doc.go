/*
Package storagemodels defines the data structures shared by entitywork's
queries and backends.

Key Types:

PaginationParams / PaginationResult:
A page request and the page it produced:

	params := storagemodels.PaginationParams{CurrentPage: 2, PageSize: 10}
	page, err := prepared.Paginate(ctx, params)
	// page.TotalItems, page.PageCount(), page.HasNextPage(), page.Items

Pages are 1-based; a page below 1 is clamped to 1 and a missing page size
falls back to DefaultPageSize (25).

Order:
A property path and a Direction (Asc, Desc) accumulated by OrderBy.

ScanOptions:
Paging behaviour of the DynamoDB backend:

	opts := storagemodels.ApplyScanOptions(
	    storagemodels.WithPageSize(250),
	    storagemodels.WithConsistentRead(true),
	)
*/
package storagemodels
