package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// UserID is the identity issued by the external auth layer. It is opaque to the relay.
type UserID string

// ConnectionID identifies one live transport connection.
type ConnectionID string

type MessageID string

// ConversationID addresses a two-party thread. Always build it with DeriveConversationID.
type ConversationID string

const conversationSeparator = "_"

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

func (id ConnectionID) String() string {
	return string(id)
}

func (id MessageID) String() string {
	return string(id)
}

func (id ConversationID) String() string {
	return string(id)
}

// DeriveConversationID sorts both participants and joins them, so the result
// does not depend on who is asking.
func DeriveConversationID(a, b UserID) ConversationID {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return ConversationID(strings.Join(ids, conversationSeparator))
}
