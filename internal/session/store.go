// Package session owns the chat collection, the current chat pointer and
// their durable persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chat-session/internal/domain"
)

// DefaultKey is the fixed name the state is persisted under.
const DefaultKey = "chat-store"

// KV is the durable key-value medium the store persists into.
// Get reports ok=false when the key has never been written.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store holds the session state. All operations are serialized; every
// mutation is persisted before the lock is released.
type Store struct {
	kv     KV
	key    string
	logger *slog.Logger

	mu    sync.Mutex
	state domain.SessionState

	subMu   sync.Mutex
	subs    map[int]func(domain.SessionState)
	nextSub int
}

type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = strings.TrimSpace(key)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads the persisted state from kv. A missing or undecodable record
// yields an empty state; a failing backend read is returned as an error.
func Open(ctx context.Context, kv KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("session: kv must not be nil")
	}
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: slog.Default(),
		subs:   map[int]func(domain.SessionState){},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("session: key must not be empty")
	}

	s.state = normalize(domain.SessionState{})
	raw, ok, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("session: load %q: %w", s.key, err)
	}
	if !ok {
		return s, nil
	}
	state, err := Decode(raw)
	if err != nil {
		s.logger.Warn("discarding unreadable session state", "key", s.key, "err", err)
		return s, nil
	}
	s.state = state
	return s, nil
}

// ResetChat starts a new empty chat and makes it current.
func (s *Store) ResetChat(ctx context.Context) (string, error) {
	id := newChatID()
	err := s.mutate(ctx, func(st *domain.SessionState) bool {
		st.Chats = append(st.Chats, domain.Chat{ID: id, Messages: []string{}})
		st.CurrentChatID = id
		return true
	})
	return id, err
}

// GetChat returns a copy of the chat with the given id.
func (s *Store) GetChat(id string) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.state.Find(id)
	if i < 0 {
		return domain.Chat{}, false
	}
	return s.state.Chats[i].Clone(), true
}

// CurrentChat resolves the current pointer. It reports false when the pointer
// is empty or dangling.
func (s *Store) CurrentChat() (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

// IsChatEmpty is true when there is no current chat or it has no messages.
func (s *Store) IsChatEmpty() bool {
	chat, ok := s.CurrentChat()
	return !ok || chat.IsEmpty()
}

// SetCurrentChatID repoints the current chat. The id is not validated; a
// stale id leaves the store in the empty-conversation state.
func (s *Store) SetCurrentChatID(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *domain.SessionState) bool {
		if st.CurrentChatID == id {
			return false
		}
		if st.Find(id) < 0 {
			s.logger.Debug("current chat set to unknown id", "chat_id", id)
		}
		st.CurrentChatID = id
		return true
	})
}

// DeleteChat removes a chat. Deleting the current chat switches to a fresh
// empty one in the same operation. The state is persisted even when id is
// unknown.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *domain.SessionState) bool {
		i := st.Find(id)
		wasCurrent := st.CurrentChatID == id
		if i < 0 && !wasCurrent {
			s.logger.Debug("delete of unknown chat", "chat_id", id)
		}
		if i >= 0 {
			st.Chats = append(st.Chats[:i:i], st.Chats[i+1:]...)
		}
		if wasCurrent {
			fresh := newChatID()
			st.Chats = append(st.Chats, domain.Chat{ID: fresh, Messages: []string{}})
			st.CurrentChatID = fresh
		}
		return true
	})
}

// AddChatMessage appends text to the current chat. Without a current chat it
// does nothing.
func (s *Store) AddChatMessage(ctx context.Context, text string) error {
	return s.mutate(ctx, func(st *domain.SessionState) bool {
		return appendTo(st, st.CurrentChatID, text)
	})
}

// AddChatMessageTo appends text to the chat with the given id, whichever chat
// is current. Unknown ids are ignored.
func (s *Store) AddChatMessageTo(ctx context.Context, chatID, text string) error {
	return s.mutate(ctx, func(st *domain.SessionState) bool {
		if !appendTo(st, chatID, text) {
			s.logger.Debug("append to unknown chat ignored", "chat_id", chatID)
			return false
		}
		return true
	})
}

// State returns a deep copy of the whole session state.
func (s *Store) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// History lists chats that have at least one message, newest first.
func (s *Store) History() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryEntry, 0, len(s.state.Chats))
	for i := len(s.state.Chats) - 1; i >= 0; i-- {
		c := s.state.Chats[i]
		if c.IsEmpty() {
			continue
		}
		out = append(out, domain.HistoryEntry{ID: c.ID, Title: c.Title(), Messages: len(c.Messages)})
	}
	return out
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(domain.SessionState)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// mutate applies fn under the lock and persists the result when fn reports a
// change. The in-memory change is kept even if persisting fails.
func (s *Store) mutate(ctx context.Context, fn func(*domain.SessionState) bool) error {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.state.Clone()
	err := s.persistLocked(ctx, snapshot)
	s.mu.Unlock()

	s.notify(snapshot)
	return err
}

func (s *Store) persistLocked(ctx context.Context, state domain.SessionState) error {
	raw, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		s.logger.Error("failed to persist session state", "key", s.key, "err", err)
		return fmt.Errorf("session: persist %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) notify(state domain.SessionState) {
	s.subMu.Lock()
	fns := make([]func(domain.SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(state.Clone())
	}
}

func (s *Store) currentLocked() (domain.Chat, bool) {
	if s.state.CurrentChatID == "" {
		return domain.Chat{}, false
	}
	i := s.state.Find(s.state.CurrentChatID)
	if i < 0 {
		return domain.Chat{}, false
	}
	return s.state.Chats[i].Clone(), true
}

func appendTo(st *domain.SessionState, chatID, text string) bool {
	if chatID == "" {
		return false
	}
	i := st.Find(chatID)
	if i < 0 {
		return false
	}
	st.Chats[i].Messages = append(st.Chats[i].Messages, text)
	return true
}

var newChatID = func() string {
	return uuid.NewString()
}
