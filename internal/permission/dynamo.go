package permission

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrClientID = "ClientID"
	attrToolName = "ToolName"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore reads permission records from a table keyed by ClientID
// (partition) and ToolName (sort).
type DynamoStore struct {
	api   DynamoAPI
	table string
}

func NewDynamoStore(api DynamoAPI, table string) *DynamoStore {
	if table == "" {
		table = DefaultTable
	}
	return &DynamoStore{api: api, table: table}
}

// Table returns the table name queried by the store.
func (s *DynamoStore) Table() string {
	return s.table
}

// Query returns every record for clientID, following pagination.
// A record that cannot be decoded fails the whole query.
func (s *DynamoStore) Query(ctx context.Context, clientID string) ([]Record, error) {
	keyCond := expression.Key(attrClientID).Equal(expression.Value(clientID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var records []Record
	paginator := dynamodb.NewQueryPaginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", s.table, err)
		}
		var batch []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("decode %s items: %w", s.table, err)
		}
		for _, r := range batch {
			if r.ToolName == "" {
				return nil, fmt.Errorf("decode %s items: record for %q has no %s", s.table, clientID, attrToolName)
			}
		}
		records = append(records, batch...)
	}
	return records, nil
}

// Put creates or replaces a record.
func (s *DynamoStore) Put(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.table, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *DynamoStore) Delete(ctx context.Context, clientID, toolName string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrClientID: &types.AttributeValueMemberS{Value: clientID},
			attrToolName: &types.AttributeValueMemberS{Value: toolName},
		},
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", s.table, err)
	}
	return nil
}
