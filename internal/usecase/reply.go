package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"chat-session/internal/domain"
)

const defaultMaxMessage = 4000

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ReplyService answers one chat message at a time. Model and system prompt
// are read from the parameter store on first use and cached; a failed load is
// retried on the next request.
type ReplyService struct {
	params        ParamGetter
	llm           LLMClient
	paramPrefix   string
	maxMessageLen int

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	systemPrompt string
	model        string
}

type ReplyInput struct {
	Message string
}

type ReplyOutput struct {
	Reply string
}

func NewReplyService(p ParamGetter, llm LLMClient, paramPrefix string, maxMessageLen int) (*ReplyService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &ReplyService{
		params:        p,
		llm:           llm,
		paramPrefix:   paramPrefix,
		maxMessageLen: maxMessageLen,
	}, nil
}

func (s *ReplyService) Reply(ctx context.Context, in ReplyInput) (ReplyOutput, error) {
	message := normalizeMessage(in.Message)
	if message == "" {
		return ReplyOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return ReplyOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return ReplyOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	flagged, err := s.llm.Moderate(ctx, message)
	if err != nil {
		if isRateLimited(err) {
			return ReplyOutput{}, newError(ErrorRateLimited, "moderation_rate_limited", err)
		}
		return ReplyOutput{}, newError(ErrorUpstream, "moderation_error", err)
	}
	if flagged {
		return ReplyOutput{}, newError(ErrorInvalidMessage, "moderation_flagged", nil)
	}

	s.cacheMu.RLock()
	model, systemPrompt := s.model, s.systemPrompt
	s.cacheMu.RUnlock()

	reply, err := s.llm.Chat(ctx, model, buildPromptMessages(systemPrompt, message))
	if err != nil {
		if isRateLimited(err) {
			return ReplyOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return ReplyOutput{}, newError(ErrorUpstream, "openai_error", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ReplyOutput{}, newError(ErrorUpstream, "empty_reply", nil)
	}
	return ReplyOutput{Reply: reply}, nil
}

func (s *ReplyService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	systemPrompt, err := s.params.GetParameter(ctx, s.paramPrefix+"/system_prompt")
	if err != nil {
		return fmt.Errorf("usecase: load system prompt: %w", err)
	}
	model, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/openai_model")
	if err != nil {
		return fmt.Errorf("usecase: load openai model: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("usecase: openai model parameter is empty")
	}

	s.systemPrompt = systemPrompt
	s.model = strings.TrimSpace(model)
	s.cacheLoaded = true
	return nil
}

func isRateLimited(err error) bool {
	status, ok := upstreamStatusCode(err)
	return ok && status == 429
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
