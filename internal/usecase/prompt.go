package usecase

import (
	"strings"

	"chat-session/internal/domain"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer the user's message clearly and concisely."

// buildPromptMessages assembles the request for a single-message turn. The
// client keeps the conversation; the endpoint only sees the current message.
func buildPromptMessages(systemPrompt, message string) []domain.ChatMessage {
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: message},
	}
}

// normalizeMessage trims surrounding whitespace and strips NUL bytes, which
// some providers reject.
func normalizeMessage(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
