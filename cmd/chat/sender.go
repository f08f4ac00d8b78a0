package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"

	"chat-session/internal/conversation"
	"chat-session/internal/integrations/chatapi"
	"chat-session/internal/integrations/openai"
	"chat-session/internal/integrations/paramstore"
)

const (
	senderOpenAI = "openai"
	senderAPI    = "api"
)

var newSender = buildSender

// buildSender wires the reply backend. The OpenAI key comes from
// OPENAI_API_KEY, or from SSM under --param-prefix when the variable is unset.
func buildSender(ctx context.Context, opts options) (conversation.Sender, error) {
	switch opts.sender {
	case senderAPI:
		if opts.apiURL == "" {
			return nil, errors.New("--api-url is required with --sender api")
		}
		client, err := chatapi.NewClient(opts.apiURL, chatapi.WithCorrelationID(uuid.NewString))
		if err != nil {
			return nil, err
		}
		return client, nil
	case senderOpenAI, "":
		clientOpts := []openai.Option{
			openai.WithModel(opts.model),
			openai.WithBaseURL(opts.openaiURL),
			openai.WithSystemPrompt(opts.systemPrompt),
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			client, err := openai.NewClient(nil, "", append(clientOpts, openai.WithAPIKey(key))...)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
		if opts.paramPrefix == "" {
			return nil, errors.New("set OPENAI_API_KEY or --param-prefix")
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		client, err := openai.NewClient(ps, opts.paramPrefix, clientOpts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown sender %q", opts.sender)
	}
}

// lazySender defers building the backend until the first Send, so commands
// that never talk to the model need no credentials.
type lazySender struct {
	build func() (conversation.Sender, error)

	once   sync.Once
	sender conversation.Sender
	err    error
}

func (l *lazySender) Send(ctx context.Context, text string) (string, error) {
	l.once.Do(func() {
		l.sender, l.err = l.build()
	})
	if l.err != nil {
		return "", l.err
	}
	return l.sender.Send(ctx, text)
}
