package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixStore = "STORE#"
	skState       = "STATE#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoKV.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoKV stores each key as a single item in a PK/SK table.
type DynamoKV struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoKV creates a DynamoDB-backed store over tableName.
func NewDynamoKV(api dynamodbAPI, tableName string) (*DynamoKV, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoKV{api: api, tableName: tableName}, nil
}

// storePK returns the partition key for a store key.
func storePK(key string) string {
	return pkPrefixStore + key
}

func (d *DynamoKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: storePK(key)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("repository: dynamodb get %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}
	// A present item without a usable state attribute is handed back as an
	// empty payload so the session decoder treats it as unreadable state.
	state, err := strAttr(out.Item, "state")
	if err != nil {
		return []byte{}, true, nil
	}
	return []byte(state), true, nil
}

// Set replaces the item for key unconditionally.
func (d *DynamoKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      stateItem(key, value, time.Now()),
	})
	if err != nil {
		return fmt.Errorf("repository: dynamodb set %q: %w", key, err)
	}
	return nil
}

func (d *DynamoKV) Close() error { return nil }

func stateItem(key string, value []byte, now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: storePK(key)},
		"SK":        &types.AttributeValueMemberS{Value: skState},
		"state":     &types.AttributeValueMemberS{Value: string(value)},
		"updatedAt": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
