// Package store provides a string key-value store backed by a DynamoDB table.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBGetPutItemAPI provides a unit-testable interface to the DynamoDB GetItem and PutItem APIs.
type DynamoDBGetPutItemAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

const (
	// KeyAttr is the partition key attribute name of the table.
	KeyAttr = "Key"

	// ValueAttr is the attribute holding the stored value.
	ValueAttr = "Value"

	maxBackoff = 8 * time.Second
)

// item is the DynamoDB representation of a single key-value pair.
type item struct {
	Key   string `dynamodbav:"Key"`
	Value string `dynamodbav:"Value"`
}

// Store reads and writes string values by string key. Writes are unconditional.
type Store struct {
	ddb       DynamoDBGetPutItemAPI
	tableName string
}

// New creates a Store over the table `tableName`, which must have a string partition key named KeyAttr.
func New(ddb DynamoDBGetPutItemAPI, tableName string) *Store {
	return &Store{ddb, tableName}
}

// Get returns the value stored under key. found is false when no item exists.
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	proj := expression.NamesList(expression.Name(KeyAttr), expression.Name(ValueAttr))
	e, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return "", false, fmt.Errorf("error building projection: %w", err)
	}

	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			KeyAttr: &types.AttributeValueMemberS{Value: key},
		},
		ProjectionExpression:     e.Projection(),
		ExpressionAttributeNames: e.Names(),
	}, withRetryer)
	if err != nil {
		return "", false, fmt.Errorf("could not get item: %w", err)
	}

	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return "", false, fmt.Errorf("could not unmarshal item: %w", err)
	}
	return it.Value, true, nil
}

// Put stores value under key, replacing any existing value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	av, err := attributevalue.MarshalMap(item{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("could not marshal item: %w", err)
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}, withRetryer)
	if err != nil {
		return fmt.Errorf("could not put item: %w", err)
	}
	return nil
}

func withRetryer(o *dynamodb.Options) {
	o.Retryer = retry.AddWithMaxBackoffDelay(retry.NewStandard(), maxBackoff)
}
