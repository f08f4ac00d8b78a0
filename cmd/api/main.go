// Command api serves POST /api/chat as an AWS Lambda behind API Gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-session/handler"
	"chat-session/internal/integrations/openai"
	"chat-session/internal/integrations/paramstore"
	"chat-session/internal/usecase"
)

type apiConfig struct {
	// paramPrefix roots the OpenAI token, model and system prompt parameters.
	paramPrefix   string
	maxMessageLen int
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid reply endpoint configuration", "err", err)
		os.Exit(1)
	}

	h, err := newReplyHandler(context.Background(), cfg)
	if err != nil {
		slog.Error("reply endpoint wiring failed", "param_prefix", cfg.paramPrefix, "err", err)
		os.Exit(1)
	}

	slog.Info("reply endpoint ready", "param_prefix", cfg.paramPrefix, "max_message_length", cfg.maxMessageLen)
	lambda.Start(h.Handle)
}

// loadConfig is the only place the environment is read.
func loadConfig() (apiConfig, error) {
	prefix := os.Getenv("PARAM_PREFIX")
	if prefix == "" {
		return apiConfig{}, errors.New("PARAM_PREFIX is not set")
	}
	maxLen, err := envInt("MAX_MESSAGE_LENGTH", 4000)
	if err != nil {
		return apiConfig{}, err
	}
	return apiConfig{paramPrefix: prefix, maxMessageLen: maxLen}, nil
}

// newReplyHandler connects SSM, OpenAI and the reply service. Parameters are
// fetched lazily on the first request, so cold starts do no network I/O here.
func newReplyHandler(ctx context.Context, cfg apiConfig) (*handler.Handler, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("parameter store: %w", err)
	}
	llm, err := openai.NewClient(params, cfg.paramPrefix)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	replies, err := usecase.NewReplyService(params, llm, cfg.paramPrefix, cfg.maxMessageLen)
	if err != nil {
		return nil, fmt.Errorf("reply service: %w", err)
	}
	return handler.NewHandler(replies)
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
