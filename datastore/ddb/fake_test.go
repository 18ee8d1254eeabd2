/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb_test

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// fakeTable serves one table from memory. Scan ignores filters, so the provider's own
// type check and in-memory matching are what tests observe.
type fakeTable struct {
	mu          sync.Mutex
	items       map[string]item
	scans       []sdk.ScanInput
	transacts   int
	describeErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]item)}
}

func keyOf(it item) string {
	var pk, sk string
	if v, ok := it["PK"].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	if v, ok := it["SK"].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return pk + "|" + sk
}

func (f *fakeTable) put(it item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[keyOf(it)] = it
}

func (f *fakeTable) get(key string) (item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[key]
	return it, ok
}

func (f *fakeTable) DescribeTable(_ context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &sdk.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName}}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	it, _ := f.get(keyOf(in.Key))
	return &sdk.GetItemOutput{Item: it}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, *in)

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := keyOf(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := len(keys)
	if in.Limit != nil && start+int(*in.Limit) < end {
		end = start + int(*in.Limit)
	}

	out := &sdk.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		last := f.items[keys[end-1]]
		out.LastEvaluatedKey = item{"PK": last["PK"], "SK": last["SK"]}
	}
	return out, nil
}

func (f *fakeTable) TransactWriteItems(_ context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts++

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		switch {
		case ti.Put != nil:
			_, exists := f.items[keyOf(ti.Put.Item)]
			if exists && aws.ToString(ti.Put.ConditionExpression) == "attribute_not_exists(PK)" {
				reasons[i].Code, failed = aws.String("ConditionalCheckFailed"), true
			}
		case ti.Delete != nil:
			_, exists := f.items[keyOf(ti.Delete.Key)]
			if !exists && aws.ToString(ti.Delete.ConditionExpression) == "attribute_exists(PK)" {
				reasons[i].Code, failed = aws.String("ConditionalCheckFailed"), true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		if ti.Put != nil {
			f.items[keyOf(ti.Put.Item)] = ti.Put.Item
		} else if ti.Delete != nil {
			delete(f.items, keyOf(ti.Delete.Key))
		}
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}
