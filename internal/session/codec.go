package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"chat-session/internal/domain"
)

// Encode serializes the state in its persisted layout. Nil slices are written
// as empty arrays so an empty chat never comes back as an absent one.
func Encode(state domain.SessionState) ([]byte, error) {
	buf, err := json.Marshal(normalize(state))
	if err != nil {
		return nil, fmt.Errorf("session: encode state: %w", err)
	}
	return buf, nil
}

// Decode parses a persisted state. Any structural problem is reported as an
// error; callers treat that as "no prior state".
func Decode(data []byte) (domain.SessionState, error) {
	var state domain.SessionState
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&state); err != nil {
		return domain.SessionState{}, fmt.Errorf("session: decode state: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.SessionState{}, errors.New("session: decode state: trailing data")
	}
	seen := make(map[string]struct{}, len(state.Chats))
	for i, c := range state.Chats {
		if c.ID == "" {
			return domain.SessionState{}, fmt.Errorf("session: decode state: chat %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return domain.SessionState{}, fmt.Errorf("session: decode state: duplicate chat id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return normalize(state), nil
}

func normalize(state domain.SessionState) domain.SessionState {
	if state.Chats == nil {
		state.Chats = []domain.Chat{}
	}
	for i := range state.Chats {
		if state.Chats[i].Messages == nil {
			state.Chats[i].Messages = []string{}
		}
	}
	return state
}
