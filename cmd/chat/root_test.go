package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"chat-session/internal/conversation"
	"chat-session/internal/domain"
	"chat-session/internal/repository"
)

type echoSender struct {
	err   error
	calls int
}

func (s *echoSender) Send(_ context.Context, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "echo: " + text, nil
}

func withSender(t *testing.T, s conversation.Sender) {
	t.Helper()
	prev := newSender
	newSender = func(context.Context, options) (conversation.Sender, error) { return s, nil }
	t.Cleanup(func() { newSender = prev })
}

func runChat(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(context.Background(), &out, &errOut, append([]string{"--store", repository.KindFile, "--store-path", dir}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runChat(t, dir, args...)
	require.NoError(t, err)
	return out
}

func exportState(t *testing.T, dir string) domain.SessionState {
	t.Helper()
	var state domain.SessionState
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "export")), &state))
	return state
}

func TestSend_FirstTurnPrintsAddress(t *testing.T) {
	withSender(t, &echoSender{})
	dir := t.TempDir()

	out := mustRun(t, dir, "send", "hello", "there")
	require.Contains(t, out, "echo: hello there")

	state := exportState(t, dir)
	require.Len(t, state.Chats, 1)
	id := state.Chats[0].ID
	require.Equal(t, id, state.CurrentChatID)
	require.Equal(t, []string{"hello there", "echo: hello there"}, state.Chats[0].Messages)
	require.Contains(t, out, "/chat/"+id)

	out = mustRun(t, dir, "send", "again")
	require.Contains(t, out, "echo: again")
	require.NotContains(t, out, "/chat/")
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	withSender(t, &echoSender{err: errors.New("network down")})
	dir := t.TempDir()

	_, err := runChat(t, dir, "send", "hello")
	var convErr *conversation.Error
	require.ErrorAs(t, err, &convErr)
	require.Equal(t, conversation.ErrorSendFailed, convErr.Code)

	state := exportState(t, dir)
	require.Len(t, state.Chats, 1)
	require.Equal(t, []string{"hello"}, state.Chats[0].Messages)
}

func TestNewOpenAndList(t *testing.T) {
	withSender(t, &echoSender{})
	dir := t.TempDir()

	mustRun(t, dir, "send", "first chat")
	first := exportState(t, dir).CurrentChatID

	out := mustRun(t, dir, "new")
	require.Contains(t, out, "new chat ")
	mustRun(t, dir, "send", "second chat")
	second := exportState(t, dir).CurrentChatID
	require.NotEqual(t, first, second)

	out = mustRun(t, dir, "list")
	require.Contains(t, out, first)
	require.Contains(t, out, second)
	require.Less(t, strings.Index(out, second), strings.Index(out, first))
	require.Contains(t, out, "second chat")

	out = mustRun(t, dir, "open", first)
	require.Contains(t, out, "first chat")
	require.Equal(t, first, exportState(t, dir).CurrentChatID)

	out = mustRun(t, dir, "open", "missing")
	require.Contains(t, out, "not found")
	require.Equal(t, first, exportState(t, dir).CurrentChatID)
}

func TestList_HidesEmptyChats(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "new")

	out := mustRun(t, dir, "list")
	require.Contains(t, out, "No chats yet")
}

func TestShow(t *testing.T) {
	withSender(t, &echoSender{})
	dir := t.TempDir()
	mustRun(t, dir, "send", "ping")
	id := exportState(t, dir).CurrentChatID

	out := mustRun(t, dir, "show")
	require.Contains(t, out, "/chat/"+id)
	require.Contains(t, out, "You")
	require.Contains(t, out, "ping")
	require.Contains(t, out, "echo: ping")

	_, err := runChat(t, dir, "show", "missing")
	require.Error(t, err)
}

func TestDeleteCurrentStartsFreshChat(t *testing.T) {
	withSender(t, &echoSender{})
	dir := t.TempDir()
	mustRun(t, dir, "send", "bye")
	id := exportState(t, dir).CurrentChatID

	out := mustRun(t, dir, "delete", id)
	require.Contains(t, out, "deleted "+id)

	state := exportState(t, dir)
	require.Equal(t, -1, state.Find(id))
	require.Len(t, state.Chats, 1)
	require.NotEqual(t, id, state.CurrentChatID)
	require.Empty(t, state.Chats[0].Messages)
}

func TestExportYAML(t *testing.T) {
	withSender(t, &echoSender{})
	dir := t.TempDir()
	mustRun(t, dir, "send", "hi")

	out := mustRun(t, dir, "export", "--format", "yaml")
	var state domain.SessionState
	require.NoError(t, yaml.Unmarshal([]byte(out), &state))
	require.Len(t, state.Chats, 1)
	require.Equal(t, []string{"hi", "echo: hi"}, state.Chats[0].Messages)

	_, err := runChat(t, dir, "export", "--format", "xml")
	require.Error(t, err)
}

func TestCommandsWithoutSendNeedNoSender(t *testing.T) {
	prev := newSender
	newSender = func(context.Context, options) (conversation.Sender, error) {
		return nil, errors.New("sender should not be built")
	}
	t.Cleanup(func() { newSender = prev })

	dir := t.TempDir()
	mustRun(t, dir, "new")
	mustRun(t, dir, "list")
	mustRun(t, dir, "export")
}

func TestUnknownStore(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Error(t, execute(context.Background(), &out, &errOut, []string{"--store", "tape", "list"}))
}

type closeTrackingBackend struct {
	*repository.MemoryKV
	closed int
}

func (b *closeTrackingBackend) Close() error {
	b.closed++
	return nil
}

func withTrackedBackend(t *testing.T) *closeTrackingBackend {
	t.Helper()
	backend := &closeTrackingBackend{MemoryKV: repository.NewMemoryKV()}
	prev := openBackend
	openBackend = func(context.Context, repository.Config) (repository.Backend, error) { return backend, nil }
	t.Cleanup(func() { openBackend = prev })
	return backend
}

func TestExecute_ClosesBackendAfterFailedCommand(t *testing.T) {
	withSender(t, &echoSender{err: errors.New("network down")})
	backend := withTrackedBackend(t)

	var out, errOut bytes.Buffer
	err := execute(context.Background(), &out, &errOut, []string{"send", "hello"})
	require.Error(t, err)
	require.Equal(t, 1, backend.closed)
}

func TestExecute_ClosesBackendAfterSuccess(t *testing.T) {
	backend := withTrackedBackend(t)

	var out, errOut bytes.Buffer
	require.NoError(t, execute(context.Background(), &out, &errOut, []string{"list"}))
	require.Equal(t, 1, backend.closed)
}

func TestBuildSender(t *testing.T) {
	ctx := context.Background()

	_, err := buildSender(ctx, options{sender: senderAPI})
	require.Error(t, err)

	s, err := buildSender(ctx, options{sender: senderAPI, apiURL: "http://localhost:3000/api/chat"})
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = buildSender(ctx, options{sender: "carrier-pigeon"})
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = buildSender(ctx, options{sender: senderOpenAI})
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	s, err = buildSender(ctx, options{sender: senderOpenAI, model: "gpt-4o"})
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestBuildSender_APISendsCorrelationID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-Id")
		_, _ = w.Write([]byte(`"pong"`))
	}))
	defer srv.Close()

	s, err := buildSender(context.Background(), options{sender: senderAPI, apiURL: srv.URL})
	require.NoError(t, err)
	reply, err := s.Send(context.Background(), "ping")
	require.NoError(t, err)
	require.Equal(t, "pong", reply)
	require.NotEmpty(t, got)
}

func TestBuildSender_OpenAIUsesSystemPrompt(t *testing.T) {
	var req struct {
		Model    string               `json:"model"`
		Messages []domain.ChatMessage `json:"messages"`
	}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"bonjour"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	s, err := buildSender(context.Background(), options{
		sender:       senderOpenAI,
		model:        "gpt-4o",
		openaiURL:    srv.URL,
		systemPrompt: "Answer in French.",
	})
	require.NoError(t, err)

	reply, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "bonjour", reply)
	require.Equal(t, "/v1/chat/completions", path)
	require.Equal(t, "gpt-4o", req.Model)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "Answer in French."},
		{Role: domain.RoleUser, Content: "hello"},
	}, req.Messages)
}

func TestLazySender_BuildsOnce(t *testing.T) {
	builds := 0
	l := &lazySender{build: func() (conversation.Sender, error) {
		builds++
		return &echoSender{}, nil
	}}
	for i := 0; i < 3; i++ {
		reply, err := l.Send(context.Background(), "x")
		require.NoError(t, err)
		require.Equal(t, "echo: x", reply)
	}
	require.Equal(t, 1, builds)

	failing := &lazySender{build: func() (conversation.Sender, error) { return nil, errors.New("no key") }}
	_, err := failing.Send(context.Background(), "x")
	require.ErrorContains(t, err, "no key")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "a b", truncate("a\n  b", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
