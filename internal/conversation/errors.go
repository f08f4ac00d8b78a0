package conversation

import "fmt"

type ErrorCode string

const (
	ErrorSendFailed    ErrorCode = "SEND_FAILED"
	ErrorPersistFailed ErrorCode = "PERSIST_FAILED"
)

type Error struct {
	Code   ErrorCode
	ChatID string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("conversation: %s (chat %s)", e.Code, e.ChatID)
	}
	return fmt.Sprintf("conversation: %s (chat %s): %v", e.Code, e.ChatID, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, chatID string, err error) *Error {
	return &Error{Code: code, ChatID: chatID, Err: err}
}
