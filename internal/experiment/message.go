package experiment

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind tags a chat message.
type MessageKind string

const (
	MessageUser         MessageKind = "user"
	MessageDiscussItems MessageKind = "discuss-item"
	MessageMediator     MessageKind = "mediator"
)

// Message is an entry of a chat stage. Messages are append-only; the timestamp is
// informational and insertion order is authoritative.
type Message struct {
	ID        string      `json:"messageId"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`

	// user messages
	FromUserID  string   `json:"fromUserId,omitempty"`
	FromProfile *Profile `json:"fromProfile,omitempty"`

	// discuss-item messages
	ItemPair *ItemPair `json:"itemPair,omitempty"`
}

func NewUserMessage(id string, from *UserProgress, text string, at time.Time) *Message {
	p := from.Profile
	return &Message{ID: id, Kind: MessageUser, Text: text, Timestamp: at, FromUserID: from.UserID, FromProfile: &p}
}

func NewDiscussItemsMessage(id string, pair ItemPair, text string, at time.Time) *Message {
	return &Message{ID: id, Kind: MessageDiscussItems, Text: text, Timestamp: at, ItemPair: &pair}
}

func NewMediatorMessage(id, text string, at time.Time) *Message {
	return &Message{ID: id, Kind: MessageMediator, Text: text, Timestamp: at}
}

// Validate checks that the fields required by the kind are present.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	switch m.Kind {
	case MessageUser:
		if m.FromUserID == "" || m.FromProfile == nil {
			return fmt.Errorf("%w: user message without sender", ErrInvalidMessage)
		}
	case MessageDiscussItems:
		if m.ItemPair == nil {
			return fmt.Errorf("%w: discuss-item message without item pair", ErrInvalidMessage)
		}
		return m.ItemPair.Validate()
	case MessageMediator:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.FromProfile != nil {
		p := *m.FromProfile
		out.FromProfile = &p
	}
	if m.ItemPair != nil {
		ip := *m.ItemPair
		out.ItemPair = &ip
	}
	return &out
}
