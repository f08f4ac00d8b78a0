// Package conversation drives single send/receive turns against a session
// store and tells the routing layer when a chat becomes addressable.
package conversation

import (
	"context"
	"errors"
	"log/slog"

	"chat-session/internal/domain"
)

// Sender delivers one user message to the language model and returns the
// reply text.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
}

// Router maps chat ids to external addresses.
type Router interface {
	// ChatAddressable is called once a chat's first turn completes.
	ChatAddressable(chatID string)
	// Navigate points the surface at an existing chat.
	Navigate(chatID string)
	// NavigateHome points the surface at the chat root with no chat selected.
	NavigateHome()
}

// SessionStore is the subset of *session.Store the controller drives.
type SessionStore interface {
	ResetChat(ctx context.Context) (string, error)
	GetChat(id string) (domain.Chat, bool)
	CurrentChat() (domain.Chat, bool)
	SetCurrentChatID(ctx context.Context, id string) error
	DeleteChat(ctx context.Context, id string) error
	AddChatMessageTo(ctx context.Context, chatID, text string) error
}

// TurnResult describes a submitted turn. Sent is false when there was no
// current chat and nothing happened.
type TurnResult struct {
	ChatID      string
	Reply       string
	Sent        bool
	Addressable bool
}

type Controller struct {
	store  SessionStore
	sender Sender
	router Router
	logger *slog.Logger
}

type Option func(*Controller)

func WithRouter(r Router) Option {
	return func(c *Controller) {
		if r != nil {
			c.router = r
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(store SessionStore, sender Sender, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("conversation: store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("conversation: sender must not be nil")
	}
	c := &Controller{
		store:  store,
		sender: sender,
		router: NopRouter{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OpenChat selects requestedID when it resolves, leaves the store untouched
// when it does not, and starts a new chat when no id was requested.
func (c *Controller) OpenChat(ctx context.Context, requestedID string) error {
	if requestedID == "" {
		if _, err := c.store.ResetChat(ctx); err != nil {
			return newError(ErrorPersistFailed, "", err)
		}
		return nil
	}
	if _, ok := c.store.GetChat(requestedID); !ok {
		c.logger.Debug("requested chat not found", "chat_id", requestedID)
		return nil
	}
	if err := c.store.SetCurrentChatID(ctx, requestedID); err != nil {
		return newError(ErrorPersistFailed, requestedID, err)
	}
	return nil
}

// SubmitMessage runs one turn on the current chat. The user message and the
// reply are both appended to the chat that was current when the turn started.
// A failing send leaves the user message in place and returns an *Error with
// ErrorSendFailed wrapping the sender's error.
func (c *Controller) SubmitMessage(ctx context.Context, text string) (TurnResult, error) {
	chat, ok := c.store.CurrentChat()
	if !ok {
		c.logger.Debug("submit without current chat ignored")
		return TurnResult{}, nil
	}
	wasEmpty := chat.IsEmpty()
	res := TurnResult{ChatID: chat.ID}

	if err := c.store.AddChatMessageTo(ctx, chat.ID, text); err != nil {
		return res, newError(ErrorPersistFailed, chat.ID, err)
	}

	reply, err := c.sender.Send(ctx, text)
	if err != nil {
		c.logger.Warn("send failed", "chat_id", chat.ID, "err", err)
		return res, newError(ErrorSendFailed, chat.ID, err)
	}
	res.Sent = true
	res.Reply = reply

	persistErr := c.store.AddChatMessageTo(ctx, chat.ID, reply)

	if wasEmpty {
		res.Addressable = true
		c.router.ChatAddressable(chat.ID)
	}
	if persistErr != nil {
		return res, newError(ErrorPersistFailed, chat.ID, persistErr)
	}
	return res, nil
}

// NewChat starts a fresh chat and sends the surface back to the chat root.
func (c *Controller) NewChat(ctx context.Context) (string, error) {
	id, err := c.store.ResetChat(ctx)
	if err != nil {
		return id, newError(ErrorPersistFailed, id, err)
	}
	c.router.NavigateHome()
	return id, nil
}

// SelectChat makes id current and navigates to it. Like the history link it
// backs, it does not check that the chat exists.
func (c *Controller) SelectChat(ctx context.Context, id string) error {
	if err := c.store.SetCurrentChatID(ctx, id); err != nil {
		return newError(ErrorPersistFailed, id, err)
	}
	c.router.Navigate(id)
	return nil
}

// DeleteChat removes a chat from history.
func (c *Controller) DeleteChat(ctx context.Context, id string) error {
	if err := c.store.DeleteChat(ctx, id); err != nil {
		return newError(ErrorPersistFailed, id, err)
	}
	return nil
}

// NopRouter ignores every routing signal.
type NopRouter struct{}

func (NopRouter) ChatAddressable(string) {}
func (NopRouter) Navigate(string)        {}
func (NopRouter) NavigateHome()          {}
