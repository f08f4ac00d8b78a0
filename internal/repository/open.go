package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const (
	KindFile     = "file"
	KindSQLite   = "sqlite"
	KindRedis    = "redis"
	KindDynamoDB = "dynamodb"
	KindMemory   = "memory"
)

// Backend is a durable key-value medium for the session store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind string
	// Path is the directory for file and the database file for sqlite.
	Path        string
	RedisAddr   string
	RedisPrefix string
	Table       string
}

var newDynamoAPI = func(ctx context.Context) (dynamodbAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// Open returns the backend named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindFile, "":
		kv, err := NewFileKV(cfg.Path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case KindSQLite:
		kv, err := OpenSQLiteKV(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case KindRedis:
		kv, err := DialRedisKV(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case KindDynamoDB:
		api, err := newDynamoAPI(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: load AWS config: %w", err)
		}
		kv, err := NewDynamoKV(api, cfg.Table)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case KindMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("repository: unknown backend %q", cfg.Kind)
	}
}
