/*
Package datastore holds the pieces every storage provider shares: the TypeSet deciding which
entity and query types a provider takes care of, identity helpers, and the Pending queue of
writes flushed before reads and at commit.

Providers live in subpackages:
  - memory: committed data in process memory, queries evaluated with query.Match
  - sqlstore: gorm over MySQL, queries compiled to SQL clauses
  - ddb: DynamoDB single-table design, queries compiled to filter expressions
*/
package datastore
