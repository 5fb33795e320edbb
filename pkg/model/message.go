package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Validate checks if the role is valid
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid message role", goerr.V("role", r))
	}
}

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindVoice  MessageKind = "voice"
	MessageKindAction MessageKind = "action"
)

// Validate checks if the message kind is valid
func (k MessageKind) Validate() error {
	switch k {
	case MessageKindText, MessageKindVoice, MessageKindAction:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid message kind", goerr.V("kind", k))
	}
}

// Source is the metadata of a retrieved passage referenced by a message
type Source map[string]any

// Message is a single immutable entry of a session log
type Message struct {
	ID             MessageID   `json:"id"`
	SessionID      SessionID   `json:"session_id"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	ContextSources []Source    `json:"context_sources"`
	Kind           MessageKind `json:"message_type"`
	CreatedAt      time.Time   `json:"created_at"`

	// Seq is the insertion order within the session, assigned by the store
	Seq int64 `json:"seq"`
}

// Validate checks required fields before the message is persisted
func (m *Message) Validate() error {
	if m.SessionID == "" {
		return goerr.Wrap(ErrValidation, "session id is empty")
	}
	if err := m.Role.Validate(); err != nil {
		return err
	}
	return m.Kind.Validate()
}

// SortMessages orders messages by creation time, breaking ties by insertion order
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}
