package domain

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// renderers and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a single conversation. Messages carry no role; the role is derived
// from the position in the sequence (see RoleAt).
type Chat struct {
	ID       string   `json:"id" yaml:"id"`
	Messages []string `json:"messages" yaml:"messages"`
}

// RoleAt returns the positional role of the message at index i.
func RoleAt(i int) string {
	if i%2 == 0 {
		return RoleUser
	}
	return RoleAssistant
}

// IsEmpty reports whether the chat has no messages.
func (c Chat) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Title is the first message of the chat, used as its history label.
func (c Chat) Title() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0]
}

// Turns expands the positional messages into role-tagged chat messages.
func (c Chat) Turns() []ChatMessage {
	out := make([]ChatMessage, 0, len(c.Messages))
	for i, m := range c.Messages {
		out = append(out, ChatMessage{Role: RoleAt(i), Content: m})
	}
	return out
}

// Clone returns a copy that shares no backing array with c. A nil message
// slice is normalized to an empty one.
func (c Chat) Clone() Chat {
	msgs := make([]string, len(c.Messages))
	copy(msgs, c.Messages)
	return Chat{ID: c.ID, Messages: msgs}
}
