package dynamodb

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// fakeClient is an in-memory table keyed by pk and sk. It understands the
// handful of expressions Store sends.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]item

	pageSize        int
	unprocessedOnce bool
	err             error
	batchCalls      int
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]item)}
}

func (f *fakeClient) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func attrS(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrN(av types.AttributeValue) int64 {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return 0
}

func conditionFailed(old item) error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
		Item:    maps.Clone(old),
	}
}

func (f *fakeClient) lookup(key item) (item, bool) {
	it, ok := f.items[attrS(key[attrPK])][attrS(key[attrSK])]
	return it, ok
}

func (f *fakeClient) store(it item) {
	pk := attrS(it[attrPK])
	part, ok := f.items[pk]
	if !ok {
		part = make(map[string]item)
		f.items[pk] = part
	}
	part[attrS(it[attrSK])] = it
}

func (f *fakeClient) remove(key item) {
	pk := attrS(key[attrPK])
	delete(f.items[pk], attrS(key[attrSK]))
	if len(f.items[pk]) == 0 {
		delete(f.items, pk)
	}
}

// checkCondition evaluates the existence conditions used on records.
func checkCondition(cond *string, old item, exists bool) error {
	switch c := aws.ToString(cond); {
	case strings.HasPrefix(c, "attribute_not_exists") && exists:
		return conditionFailed(old)
	case strings.HasPrefix(c, "attribute_exists") && !exists:
		return conditionFailed(nil)
	}
	return nil
}

func (f *fakeClient) Query(_ context.Context, in *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	pk := attrS(in.ExpressionAttributeValues[":pk"])
	part := f.items[pk]
	sks := slices.Sorted(maps.Keys(part))

	start := 0
	if in.ExclusiveStartKey != nil {
		last := attrS(in.ExclusiveStartKey[attrSK])
		start, _ = slices.BinarySearch(sks, last)
		if start < len(sks) && sks[start] == last {
			start++
		}
	}
	end := len(sks)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &ddb.QueryOutput{Count: int32(end - start)}
	if in.Select != types.SelectCount {
		for _, sk := range sks[start:end] {
			out.Items = append(out.Items, maps.Clone(part[sk]))
		}
	}
	if end < len(sks) {
		out.LastEvaluatedKey = item{
			attrPK: stringValue(pk),
			attrSK: stringValue(sks[end-1]),
		}
	}
	return out, nil
}

func (f *fakeClient) GetItem(_ context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.lookup(in.Key)
	if !ok {
		return &ddb.GetItemOutput{}, nil
	}
	return &ddb.GetItemOutput{Item: maps.Clone(it)}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	old, exists := f.lookup(in.Item)
	if err := checkCondition(in.ConditionExpression, old, exists); err != nil {
		return nil, err
	}
	f.store(maps.Clone(in.Item))
	return &ddb.PutItemOutput{}, nil
}

// UpdateItem implements the meta item claim: set dim once, add to next_seq.
func (f *fakeClient) UpdateItem(_ context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	old, exists := f.lookup(in.Key)
	dim := in.ExpressionAttributeValues[":dim"]
	if exists {
		if cur, ok := old[attrDim]; ok && attrN(cur) != attrN(dim) {
			return nil, conditionFailed(old)
		}
	}

	it := maps.Clone(old)
	if it == nil {
		it = maps.Clone(in.Key)
	}
	if _, ok := it[attrDim]; !ok {
		it[attrDim] = dim
	}
	next := attrN(it[attrNextSeq]) + attrN(in.ExpressionAttributeValues[":n"])
	it[attrNextSeq] = numberValue(next)
	f.store(it)

	return &ddb.UpdateItemOutput{Attributes: maps.Clone(it)}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	old, exists := f.lookup(in.Key)
	if err := checkCondition(in.ConditionExpression, old, exists); err != nil {
		return nil, err
	}
	f.remove(in.Key)
	return &ddb.DeleteItemOutput{}, nil
}

// BatchWriteItem applies deletes. With unprocessedOnce set, the first request
// of the first call is handed back unprocessed.
func (f *fakeClient) BatchWriteItem(_ context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batchCalls++

	out := &ddb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		for _, req := range reqs {
			if f.unprocessedOnce {
				f.unprocessedOnce = false
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			if req.DeleteRequest != nil {
				f.remove(req.DeleteRequest.Key)
			}
		}
	}
	return out, nil
}

// records returns the number of record items in a namespace.
func (f *fakeClient) records(ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[ns])
}
