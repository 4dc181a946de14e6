package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const defaultTTL = 30 * 24 * time.Hour

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// stateItem is the table row for one state document.
type stateItem struct {
	PK        string `dynamodbav:"PK"`
	Doc       string `dynamodbav:"doc"`
	Version   int64  `dynamodbav:"version"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoStore persists state documents in a DynamoDB table keyed by PK.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore. A non-positive ttl uses 30 days.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// statePK returns the DynamoDB partition key for a state key.
func statePK(key string) string {
	return "STATE#" + key
}

// Get reads the document with a strongly consistent read so a version read
// here is never older than the last successful Put.
func (c *DynamoStore) Get(ctx context.Context, key string) (Item, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statePK(key)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Item{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return Item{}, false, nil
	}

	var row stateItem
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return Item{}, false, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	if row.Version <= 0 {
		return Item{}, false, fmt.Errorf("repository: Get: invalid version %d", row.Version)
	}
	return Item{Data: []byte(row.Doc), Version: row.Version}, true, nil
}

// Put writes the whole document conditioned on the stored version.
func (c *DynamoStore) Put(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	if expectedVersion < 0 {
		return 0, fmt.Errorf("repository: Put: invalid expected version %d", expectedVersion)
	}
	now := c.now().UTC()
	next := expectedVersion + 1
	item, err := attributevalue.MarshalMap(stateItem{
		PK:        statePK(key),
		Doc:       string(data),
		Version:   next,
		UpdatedAt: now.Format(time.RFC3339),
		TTL:       now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: Put marshal: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}
	if expectedVersion == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("version = :expected")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("repository: Put %q: %w", key, ErrConflict)
		}
		return 0, fmt.Errorf("repository: Put: %w", err)
	}
	return next, nil
}
