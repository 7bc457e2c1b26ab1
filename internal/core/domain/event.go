package domain

import "encoding/json"

// EventName is the tag of a server to client event.
type EventName string

const (
	EventPresenceSnapshot EventName = "presence:snapshot"
	EventPresenceOnline   EventName = "presence:online"
	EventPresenceOffline  EventName = "presence:offline"
	EventMessageSent      EventName = "message:sent"
	EventMessageReceive   EventName = "message:receive"
	EventHistoryResult    EventName = "history:result"
	EventReactionUpdated  EventName = "reaction:updated"
	EventEditApplied      EventName = "edit:applied"
	EventDeleteApplied    EventName = "delete:applied"
	EventReadReceipt      EventName = "read:receipt"
	EventTyping           EventName = "typing"
	EventSignalOffer      EventName = "signal:offer"
	EventSignalAnswer     EventName = "signal:answer"
	EventSignalCandidate  EventName = "signal:candidate"
	EventSignalEnd        EventName = "signal:end"
	EventRoomRole         EventName = "room:role"
	EventPeerIncoming     EventName = "peer:incoming"
	EventError            EventName = "error"
)

// Event is an outbound notification. Delivery is at-most-once.
type Event struct {
	Name    EventName
	Payload any
}

type PresencePayload struct {
	UserID       UserID       `json:"userId"`
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName,omitempty"`
}

type PresenceSnapshotPayload struct {
	Users []PresencePayload `json:"users"`
}

// HistoryEntry is a stored message plus sender display data resolved at read time.
type HistoryEntry struct {
	Message
	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
}

type HistoryResult struct {
	ConversationID ConversationID `json:"conversationId"`
	Messages       []HistoryEntry `json:"messages"`
}

type ReactionResult struct {
	MessageID MessageID      `json:"messageId"`
	Reactions []Reaction     `json:"reactions"`
	UserID    UserID         `json:"userId"`
	Emoji     string         `json:"emoji"`
	Action    ReactionAction `json:"action"`
}

type EditPayload struct {
	MessageID MessageID `json:"messageId"`
	Message   Message   `json:"message"`
}

type ReadReceiptPayload struct {
	ConversationID ConversationID `json:"conversationId"`
	ReaderID       UserID         `json:"readerId"`
	MessageIDs     []MessageID    `json:"messageIds"`
}

type TypingPayload struct {
	FromUserID UserID `json:"fromUserId"`
	Typing     bool   `json:"typing"`
}

type SignalPayload struct {
	Offer            json.RawMessage `json:"offer,omitempty"`
	Answer           json.RawMessage `json:"answer,omitempty"`
	Candidate        json.RawMessage `json:"candidate,omitempty"`
	CallID           string          `json:"callId"`
	FromUserID       UserID          `json:"fromUserId,omitempty"`
	FromConnectionID ConnectionID    `json:"fromConnectionId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
