package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

type UserID string

// Session is a conversation between a (possibly anonymous) user and the assistant.
// Active only transitions from true to false.
type Session struct {
	ID        SessionID `json:"id"`
	UserID    UserID    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// MessageCount is used by stores to assign message sequence numbers
	MessageCount int64 `json:"-"`
}

const (
	sessionTitleLimit   = 50
	defaultSessionTitle = "New Chat Session"
)

// SessionTitle derives a session title from the first message of a conversation.
// The first 50 characters are kept and an ellipsis is appended when the text is longer.
func SessionTitle(text string) string {
	runes := []rune(text)
	if len(runes) > sessionTitleLimit {
		return string(runes[:sessionTitleLimit]) + "..."
	}
	return text
}

// InitialSessionTitle is SessionTitle for an optional initial query, falling back
// to a generic title when no query is given.
func InitialSessionTitle(initialQuery string) string {
	if initialQuery == "" {
		return defaultSessionTitle
	}
	return SessionTitle(initialQuery)
}
