package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-session/internal/domain"
	"chat-session/internal/integrations/openai"
)

type mockParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("param not found: %s", name)
	}
	return v, nil
}

type transientParams struct {
	*mockParams
	failOnce bool
}

func (p *transientParams) GetParameter(ctx context.Context, name string) (string, error) {
	if p.failOnce {
		p.failOnce = false
		return "", errors.New("temporary ssm failure")
	}
	return p.mockParams.GetParameter(ctx, name)
}

type mockLLM struct {
	reply       string
	chatErr     error
	flagged     bool
	moderateErr error

	chatCalls    int
	lastModel    string
	lastMessages []domain.ChatMessage
}

func (m *mockLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage) (string, error) {
	m.chatCalls++
	m.lastModel = model
	m.lastMessages = msgs
	return m.reply, m.chatErr
}

func (m *mockLLM) Moderate(_ context.Context, _ string) (bool, error) {
	return m.flagged, m.moderateErr
}

func defaultParams() *mockParams {
	return &mockParams{
		vals: map[string]string{
			"/prefix/system_prompt":       "You are Le Chat.",
			"/prefix/config/openai_model": "gpt-4o-mini",
		},
	}
}

func newTestService(t *testing.T, p ParamGetter, llm LLMClient) *ReplyService {
	t.Helper()
	svc, err := NewReplyService(p, llm, "/prefix/", 50)
	require.NoError(t, err)
	return svc
}

func expectReplyError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewReplyService_ValidatesDependencies(t *testing.T) {
	_, err := NewReplyService(nil, &mockLLM{}, "/prefix", 0)
	require.Error(t, err)

	_, err = NewReplyService(defaultParams(), nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewReplyService(defaultParams(), &mockLLM{}, " ", 0)
	require.Error(t, err)

	svc, err := NewReplyService(defaultParams(), &mockLLM{}, "/prefix", 0)
	require.NoError(t, err)
	require.Equal(t, defaultMaxMessage, svc.maxMessageLen)
}

func TestReply_HappyPath(t *testing.T) {
	llm := &mockLLM{reply: "  Bonjour !  "}
	svc := newTestService(t, defaultParams(), llm)

	out, err := svc.Reply(context.Background(), ReplyInput{Message: "  Salut  "})
	require.NoError(t, err)
	require.Equal(t, "Bonjour !", out.Reply)
	require.Equal(t, "gpt-4o-mini", llm.lastModel)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are Le Chat."},
		{Role: domain.RoleUser, Content: "Salut"},
	}, llm.lastMessages)
}

func TestReply_ValidationErrors(t *testing.T) {
	llm := &mockLLM{reply: "x"}
	svc := newTestService(t, defaultParams(), llm)

	_, err := svc.Reply(context.Background(), ReplyInput{Message: " \x00 "})
	expectReplyError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Reply(context.Background(), ReplyInput{Message: strings.Repeat("é", 51)})
	expectReplyError(t, err, ErrorInvalidInput, "message_too_long")

	_, err = svc.Reply(context.Background(), ReplyInput{Message: strings.Repeat("é", 50)})
	require.NoError(t, err)
	require.Equal(t, 1, llm.chatCalls)
}

func TestReply_ModerationErrors(t *testing.T) {
	svc := newTestService(t, defaultParams(), &mockLLM{flagged: true})
	_, err := svc.Reply(context.Background(), ReplyInput{Message: "unsafe"})
	expectReplyError(t, err, ErrorInvalidMessage, "moderation_flagged")

	svc = newTestService(t, defaultParams(), &mockLLM{moderateErr: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}})
	_, err = svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorUpstream, "moderation_error")

	svc = newTestService(t, defaultParams(), &mockLLM{moderateErr: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}})
	_, err = svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorRateLimited, "moderation_rate_limited")
}

func TestReply_ChatErrors(t *testing.T) {
	svc := newTestService(t, defaultParams(), &mockLLM{chatErr: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}})
	_, err := svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorRateLimited, "openai_rate_limited")

	svc = newTestService(t, defaultParams(), &mockLLM{chatErr: errors.New("connection reset")})
	_, err = svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorUpstream, "openai_error")

	svc = newTestService(t, defaultParams(), &mockLLM{reply: "   "})
	_, err = svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorUpstream, "empty_reply")
}

func TestReply_SSMLoadErrors(t *testing.T) {
	svc := newTestService(t, &mockParams{err: errors.New("ssm unavailable")}, &mockLLM{reply: "x"})
	_, err := svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorInternal, "ssm_load_error")

	p := defaultParams()
	p.vals["/prefix/config/openai_model"] = " "
	svc = newTestService(t, p, &mockLLM{reply: "x"})
	_, err = svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorInternal, "ssm_load_error")
}

func TestReply_SSMLoadError_IsRetriedOnNextRequest(t *testing.T) {
	p := &transientParams{mockParams: defaultParams(), failOnce: true}
	svc := newTestService(t, p, &mockLLM{reply: "ok"})

	_, err := svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	expectReplyError(t, err, ErrorInternal, "ssm_load_error")

	out, err := svc.Reply(context.Background(), ReplyInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Reply)
}

func TestReply_ConfigLoadedOnce(t *testing.T) {
	p := defaultParams()
	svc := newTestService(t, p, &mockLLM{reply: "ok"})
	for i := 0; i < 3; i++ {
		_, err := svc.Reply(context.Background(), ReplyInput{Message: "hi"})
		require.NoError(t, err)
	}
	require.Equal(t, 2, p.calls)
}

func TestBuildPromptMessages_DefaultSystemPrompt(t *testing.T) {
	msgs := buildPromptMessages("  ", "hello")
	require.Len(t, msgs, 2)
	require.Equal(t, defaultSystemPrompt, msgs[0].Content)
	require.Equal(t, domain.RoleUser, msgs[1].Role)
}
