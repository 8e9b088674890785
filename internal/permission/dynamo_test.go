package permission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo serves Query pages in order, using the page index as the
// pagination key.
type fakeDynamo struct {
	pages    [][]map[string]types.AttributeValue
	queryErr error

	queries []*dynamodb.QueryInput
	puts    []*dynamodb.PutItemInput
	deletes []*dynamodb.DeleteItemInput
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	idx := 0
	if in.ExclusiveStartKey != nil {
		var k struct{ Page int }
		if err := attributevalue.UnmarshalMap(in.ExclusiveStartKey, &k); err != nil {
			return nil, err
		}
		idx = k.Page
	}
	out := &dynamodb.QueryOutput{}
	if idx < len(f.pages) {
		out.Items = f.pages[idx]
	}
	if idx+1 < len(f.pages) {
		next, _ := attributevalue.MarshalMap(struct{ Page int }{idx + 1})
		out.LastEvaluatedKey = next
	}
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodb.DeleteItemOutput{}, nil
}

func mustItems(t *testing.T, recs ...Record) []map[string]types.AttributeValue {
	t.Helper()
	var items []map[string]types.AttributeValue
	for _, r := range recs {
		item, err := attributevalue.MarshalMap(r)
		if err != nil {
			t.Fatal(err)
		}
		items = append(items, item)
	}
	return items
}

func TestDynamoStore_Query(t *testing.T) {
	api := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		mustItems(t,
			Record{ClientID: "c1", ToolName: "search", Allowed: true},
			Record{ClientID: "c1", ToolName: "delete", Allowed: false},
		),
	}}
	s := NewDynamoStore(api, "")

	recs, err := s.Query(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ToolName != "search" || !recs[0].Allowed {
		t.Errorf("first record = %+v", recs[0])
	}

	in := api.queries[0]
	if *in.TableName != DefaultTable {
		t.Errorf("table = %q, want %q", *in.TableName, DefaultTable)
	}
	if in.KeyConditionExpression == nil || !strings.Contains(*in.KeyConditionExpression, "=") {
		t.Errorf("unexpected key condition %v", in.KeyConditionExpression)
	}
	var foundClient bool
	for _, v := range in.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == "c1" {
			foundClient = true
		}
	}
	if !foundClient {
		t.Error("client id not bound in expression values")
	}
	var foundName bool
	for _, n := range in.ExpressionAttributeNames {
		if n == "ClientID" {
			foundName = true
		}
	}
	if !foundName {
		t.Error("ClientID not referenced in expression names")
	}
}

func TestDynamoStore_QueryPaginates(t *testing.T) {
	api := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		mustItems(t, Record{ClientID: "c1", ToolName: "a", Allowed: true}),
		mustItems(t, Record{ClientID: "c1", ToolName: "b", Allowed: true}),
		mustItems(t, Record{ClientID: "c1", ToolName: "c", Allowed: false}),
	}}
	s := NewDynamoStore(api, "Perms")

	recs, err := s.Query(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 3 || len(api.queries) != 3 {
		t.Fatalf("records = %d, queries = %d; want 3, 3", len(recs), len(api.queries))
	}
	if got := Allowed(recs).Names(); len(got) != 2 {
		t.Errorf("allowed = %v", got)
	}
}

func TestDynamoStore_QueryError(t *testing.T) {
	api := &fakeDynamo{queryErr: errors.New("throttled")}
	if _, err := NewDynamoStore(api, "").Query(context.Background(), "c1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDynamoStore_MalformedItem(t *testing.T) {
	bad := map[string]types.AttributeValue{
		"ClientID": &types.AttributeValueMemberS{Value: "c1"},
		"ToolName": &types.AttributeValueMemberS{Value: "search"},
		"Allowed":  &types.AttributeValueMemberS{Value: "yes"},
	}
	api := &fakeDynamo{pages: [][]map[string]types.AttributeValue{{bad}}}
	if _, err := NewDynamoStore(api, "").Query(context.Background(), "c1"); err == nil {
		t.Fatal("expected decode error for string Allowed attribute")
	}

	missing := map[string]types.AttributeValue{
		"ClientID": &types.AttributeValueMemberS{Value: "c1"},
		"Allowed":  &types.AttributeValueMemberBOOL{Value: true},
	}
	api = &fakeDynamo{pages: [][]map[string]types.AttributeValue{{missing}}}
	if _, err := NewDynamoStore(api, "").Query(context.Background(), "c1"); err == nil {
		t.Fatal("expected error for record without ToolName")
	}
}

func TestDynamoStore_PutAndDelete(t *testing.T) {
	api := &fakeDynamo{}
	s := NewDynamoStore(api, "Perms")
	ctx := context.Background()

	if err := s.Put(ctx, Record{ClientID: "c1", ToolName: "search", Allowed: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(api.puts[0].Item, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ClientID != "c1" || rec.ToolName != "search" || !rec.Allowed {
		t.Errorf("stored %+v", rec)
	}

	if err := s.Delete(ctx, "c1", "search"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	key := api.deletes[0].Key
	if key["ClientID"].(*types.AttributeValueMemberS).Value != "c1" ||
		key["ToolName"].(*types.AttributeValueMemberS).Value != "search" {
		t.Errorf("unexpected delete key %v", key)
	}
}
