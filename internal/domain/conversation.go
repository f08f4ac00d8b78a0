package domain

// SessionState is the full persisted client state: every chat in creation
// order plus the current chat pointer. CurrentChatID may be empty or refer to
// a chat that no longer exists.
type SessionState struct {
	Chats         []Chat `json:"chats" yaml:"chats"`
	CurrentChatID string `json:"currentChatId" yaml:"currentChatId"`
}

// Find returns the index of the chat with the given id, or -1.
func (s SessionState) Find(id string) int {
	for i := range s.Chats {
		if s.Chats[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the state.
func (s SessionState) Clone() SessionState {
	chats := make([]Chat, len(s.Chats))
	for i, c := range s.Chats {
		chats[i] = c.Clone()
	}
	return SessionState{Chats: chats, CurrentChatID: s.CurrentChatID}
}

// HistoryEntry is one row of the chat history listing.
type HistoryEntry struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Messages int    `json:"messages" yaml:"messages"`
}
