package domain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// DeletedPlaceholder replaces the text of a tombstoned message.
const DeletedPlaceholder = "This message was deleted"

type MessageType string

const (
	MessageText       MessageType = "text"
	MessageImage      MessageType = "image"
	MessageFile       MessageType = "file"
	MessageCallInvite MessageType = "call-invite"
	MessageCallEnded  MessageType = "call-ended"
)

type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type Reaction struct {
	UserID    UserID    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

type Message struct {
	ID             MessageID      `json:"id"`
	SenderID       UserID         `json:"senderId"`
	ReceiverID     UserID         `json:"receiverId"`
	ConversationID ConversationID `json:"conversationId"`
	Text           string         `json:"text"`
	Type           MessageType    `json:"messageType"`
	File           *FileMeta      `json:"file,omitempty"`
	ReplyTo        MessageID      `json:"replyTo,omitempty"`
	Reactions      []Reaction     `json:"reactions"`
	IsRead         bool           `json:"isRead"`
	IsEdited       bool           `json:"isEdited"`
	EditedAt       *time.Time     `json:"editedAt,omitempty"`
	IsDeleted      bool           `json:"isDeleted"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Draft is an unsaved message as submitted by a sender.
type Draft struct {
	SenderID   UserID      `json:"senderId" validate:"required"`
	ReceiverID UserID      `json:"targetUserId" validate:"required"`
	Text       string      `json:"text" validate:"required_without=FileURL"`
	Type       MessageType `json:"messageType" validate:"omitempty,oneof=text image file call-invite call-ended"`
	FileURL    string      `json:"fileUrl" validate:"omitempty,max=2048"`
	FileName   string      `json:"fileName"`
	FileSize   int64       `json:"fileSize" validate:"gte=0"`
	ReplyTo    MessageID   `json:"replyTo"`
}

// NewMessage validates the draft and stamps it with an id and creation time.
func NewMessage(d Draft, at time.Time) (Message, error) {
	if err := Validate(d); err != nil {
		return Message{}, err
	}
	msgType := d.Type
	if msgType == "" {
		msgType = MessageText
		if d.FileURL != "" {
			msgType = MessageFile
		}
	}
	msg := Message{
		ID:             NewMessageID(),
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		ConversationID: DeriveConversationID(d.SenderID, d.ReceiverID),
		Text:           d.Text,
		Type:           msgType,
		ReplyTo:        d.ReplyTo,
		Reactions:      []Reaction{},
		CreatedAt:      at.UTC(),
	}
	if d.FileURL != "" {
		msg.File = &FileMeta{URL: d.FileURL, Name: d.FileName, Size: d.FileSize}
	}
	return msg, nil
}

// Participants returns sender and receiver.
func (m Message) Participants() []UserID {
	return []UserID{m.SenderID, m.ReceiverID}
}

// ToggleReaction adds the (userID, emoji) pair if absent and removes it otherwise.
func (m *Message) ToggleReaction(userID UserID, emoji string, at time.Time) (ReactionAction, error) {
	if userID == "" || emoji == "" {
		return "", fmt.Errorf("%w: user and emoji are required", ErrValidation)
	}
	if m.IsDeleted {
		return "", fmt.Errorf("%w: message %s is deleted", ErrValidation, m.ID)
	}
	same := func(r Reaction) bool { return r.UserID == userID && r.Emoji == emoji }
	if lo.ContainsBy(m.Reactions, same) {
		m.Reactions = lo.Reject(m.Reactions, func(r Reaction, _ int) bool { return same(r) })
		return ReactionRemoved, nil
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at.UTC()})
	return ReactionAdded, nil
}

// Edit replaces the text. Only the sender may edit; no history is kept.
func (m *Message) Edit(userID UserID, text string, at time.Time) error {
	if userID != m.SenderID {
		return fmt.Errorf("%w: only the sender can edit message %s", ErrPermission, m.ID)
	}
	if text == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if m.IsDeleted {
		return fmt.Errorf("%w: message %s is deleted", ErrValidation, m.ID)
	}
	editedAt := at.UTC()
	m.Text = text
	m.IsEdited = true
	m.EditedAt = &editedAt
	return nil
}

// Tombstone marks the message deleted and drops its content. It cannot be undone.
func (m *Message) Tombstone(userID UserID, at time.Time) error {
	if userID != m.SenderID {
		return fmt.Errorf("%w: only the sender can delete message %s", ErrPermission, m.ID)
	}
	if m.IsDeleted {
		return nil
	}
	deletedAt := at.UTC()
	m.Text = DeletedPlaceholder
	m.File = nil
	m.IsDeleted = true
	m.DeletedAt = &deletedAt
	return nil
}
