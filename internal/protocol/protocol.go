// Package protocol defines the websocket wire format: every frame is an
// envelope {"event": name, "data": payload} in both directions.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Wyydra/parley/internal/core/domain"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client to server event names.
const (
	Join            = "join"
	MessageSend     = "message:send"
	HistoryRequest  = "history:request"
	ReactionToggle  = "reaction:toggle"
	EditRequest     = "edit:request"
	DeleteRequest   = "delete:request"
	ReadMark        = "read:mark"
	Typing          = "typing"
	SignalOffer     = "signal:offer"
	SignalAnswer    = "signal:answer"
	SignalCandidate = "signal:candidate"
	SignalEnd       = "signal:end"
	RoomJoin        = "room:join"
	RoomLeave       = "room:leave"
)

var inbound = map[string]bool{
	Join: true, MessageSend: true, HistoryRequest: true, ReactionToggle: true,
	EditRequest: true, DeleteRequest: true, ReadMark: true, Typing: true,
	SignalOffer: true, SignalAnswer: true, SignalCandidate: true, SignalEnd: true,
	RoomJoin: true, RoomLeave: true,
}

// Known reports whether name is a client to server event.
func Known(name string) bool {
	return inbound[name]
}

type JoinPayload struct {
	UserID      domain.UserID `json:"userId" validate:"required,max=128"`
	DisplayName string        `json:"displayName" validate:"max=128"`
	AvatarURL   string        `json:"avatarUrl" validate:"max=2048"`
	Status      string        `json:"status" validate:"max=256"`
}

func (p JoinPayload) Profile() domain.Profile {
	return domain.Profile{UserID: p.UserID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, Status: p.Status}
}

// SendPayload leaves content checks to domain.NewMessage. SenderID may be
// omitted, in which case the session user is assumed.
type SendPayload struct {
	SenderID    domain.UserID      `json:"senderId"`
	ReceiverID  domain.UserID      `json:"targetUserId" validate:"required"`
	Text        string             `json:"text"`
	MessageType domain.MessageType `json:"messageType"`
	FileURL     string             `json:"fileUrl"`
	FileName    string             `json:"fileName"`
	FileSize    int64              `json:"fileSize"`
	ReplyTo     domain.MessageID   `json:"replyTo"`
}

func (p SendPayload) Draft() domain.Draft {
	return domain.Draft{
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		Type:       p.MessageType,
		FileURL:    p.FileURL,
		FileName:   p.FileName,
		FileSize:   p.FileSize,
		ReplyTo:    p.ReplyTo,
	}
}

type HistoryPayload struct {
	UserID       domain.UserID `json:"userId"`
	TargetUserID domain.UserID `json:"targetUserId" validate:"required"`
	Limit        int           `json:"limit" validate:"gte=0"`
}

type ReactionPayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	UserID    domain.UserID    `json:"userId"`
	Emoji     string           `json:"emoji" validate:"required,max=32"`
}

type EditPayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	UserID    domain.UserID    `json:"userId"`
	NewText   string           `json:"newText" validate:"required"`
}

type DeletePayload struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	UserID    domain.UserID    `json:"userId"`
}

type ReadPayload struct {
	PeerID domain.UserID `json:"peerId" validate:"required"`
}

type TypingPayload struct {
	ToUserID domain.UserID `json:"toUserId" validate:"required"`
	Typing   bool          `json:"typing"`
}

// SignalPayload is shared by all four signal events. TargetID is a user id
// for signal:offer and a connection id for the others; Payload is forwarded
// untouched.
type SignalPayload struct {
	TargetID string          `json:"targetId" validate:"required,max=128"`
	Payload  json.RawMessage `json:"payload"`
	CallID   string          `json:"callId" validate:"max=128"`
}

type RoomJoinPayload struct {
	MeetingID   string `json:"meetingId" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=128"`
	Locale      string `json:"locale" validate:"max=16"`
}

// Decode unmarshals data into T and runs its validation tags. Every failure
// wraps domain.ErrValidation.
func Decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: malformed payload: %v", domain.ErrValidation, err)
	}
	if err := domain.Validate(v); err != nil {
		return v, err
	}
	return v, nil
}

// Encode wraps an outbound event into an envelope.
func Encode(evt domain.Event) ([]byte, error) {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: string(evt.Name), Data: data})
}
