package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit = 50
	lockStripes         = 64
)

type ChatService struct {
	repo     port.MessageRepository
	profiles port.ProfileRepository
	presence port.Presence
	gateway  port.Gateway
	clock    clock.Clock

	historyDefault int
	historyMax     int

	// read-modify-write of one message id always takes the same stripe
	stripes [lockStripes]sync.Mutex
}

type ChatOption func(*ChatService)

// WithHistoryLimits overrides the default page size and its upper bound.
func WithHistoryLimits(def, maximum int) ChatOption {
	return func(s *ChatService) {
		if def > 0 {
			s.historyDefault = def
		}
		if maximum > 0 {
			s.historyMax = maximum
		}
	}
}

func NewChatService(
	repo port.MessageRepository,
	profiles port.ProfileRepository,
	presence port.Presence,
	gateway port.Gateway,
	clk clock.Clock,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		repo:           repo,
		profiles:       profiles,
		presence:       presence,
		gateway:        gateway,
		clock:          clk,
		historyDefault: DefaultHistoryLimit,
		historyMax:     4 * DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatService) lock(id domain.MessageID) func() {
	m := &s.stripes[xxhash.Sum64String(id.String())%lockStripes]
	m.Lock()
	return m.Unlock
}

// Send persists the draft and delivers it: message:sent back to the sending
// connection and message:receive to the recipient when online.
func (s *ChatService) Send(ctx context.Context, from domain.ConnectionID, draft domain.Draft) (domain.Message, error) {
	if session, ok := s.presence.Session(from); ok && session.UserID != draft.SenderID {
		return domain.Message{}, fmt.Errorf("%w: sender %s does not match session user %s", domain.ErrValidation, draft.SenderID, session.UserID)
	}
	msg, err := domain.NewMessage(draft, s.clock.Now())
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	log.Debug().Str("message_id", msg.ID.String()).Str("conversation_id", msg.ConversationID.String()).Msg("Message stored")

	s.gateway.Send(ctx, from, domain.Event{Name: domain.EventMessageSent, Payload: msg})
	if to, ok := s.presence.Lookup(msg.ReceiverID); ok && to != from {
		s.gateway.Send(ctx, to, domain.Event{Name: domain.EventMessageReceive, Payload: msg})
	}
	return msg, nil
}

// History returns the latest messages between the two users in chronological order.
func (s *ChatService) History(ctx context.Context, userID, targetUserID domain.UserID, limit int) (domain.HistoryResult, error) {
	if userID == "" || targetUserID == "" {
		return domain.HistoryResult{}, fmt.Errorf("%w: both users are required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = s.historyDefault
	}
	limit = min(limit, s.historyMax)

	conversationID := domain.DeriveConversationID(userID, targetUserID)
	newestFirst, err := s.repo.History(ctx, conversationID, limit)
	if err != nil {
		return domain.HistoryResult{}, err
	}

	profiles := make(map[domain.UserID]domain.Profile, 2)
	for _, id := range []domain.UserID{userID, targetUserID} {
		if p, err := s.profiles.GetProfile(ctx, id); err == nil {
			profiles[id] = p
		}
	}
	entries := lo.Map(lo.Reverse(newestFirst), func(m domain.Message, _ int) domain.HistoryEntry {
		p := profiles[m.SenderID]
		return domain.HistoryEntry{Message: m, SenderName: p.DisplayName, SenderAvatar: p.AvatarURL}
	})
	return domain.HistoryResult{ConversationID: conversationID, Messages: entries}, nil
}

func (s *ChatService) ToggleReaction(ctx context.Context, id domain.MessageID, userID domain.UserID, emoji string) (domain.ReactionResult, error) {
	var action domain.ReactionAction
	msg, err := s.mutate(ctx, id, func(m *domain.Message) error {
		var err error
		action, err = m.ToggleReaction(userID, emoji, s.clock.Now())
		return err
	})
	if err != nil {
		return domain.ReactionResult{}, err
	}
	result := domain.ReactionResult{
		MessageID: msg.ID,
		Reactions: msg.Reactions,
		UserID:    userID,
		Emoji:     emoji,
		Action:    action,
	}
	s.notifyParticipants(ctx, msg, domain.Event{Name: domain.EventReactionUpdated, Payload: result})
	return result, nil
}

func (s *ChatService) Edit(ctx context.Context, id domain.MessageID, userID domain.UserID, text string) (domain.Message, error) {
	msg, err := s.mutate(ctx, id, func(m *domain.Message) error {
		return m.Edit(userID, text, s.clock.Now())
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.notifyParticipants(ctx, msg, domain.Event{
		Name:    domain.EventEditApplied,
		Payload: domain.EditPayload{MessageID: msg.ID, Message: msg},
	})
	return msg, nil
}

// Delete tombstones the message. Deleting an already deleted message returns
// the existing tombstone.
func (s *ChatService) Delete(ctx context.Context, id domain.MessageID, userID domain.UserID) (domain.Message, error) {
	msg, err := s.mutate(ctx, id, func(m *domain.Message) error {
		return m.Tombstone(userID, s.clock.Now())
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.notifyParticipants(ctx, msg, domain.Event{
		Name:    domain.EventDeleteApplied,
		Payload: domain.EditPayload{MessageID: msg.ID, Message: msg},
	})
	return msg, nil
}

// MarkRead flags everything peerID sent to readerID as read and tells the peer.
func (s *ChatService) MarkRead(ctx context.Context, readerID, peerID domain.UserID) (int, error) {
	if readerID == "" || peerID == "" {
		return 0, fmt.Errorf("%w: reader and peer are required", domain.ErrValidation)
	}
	conversationID := domain.DeriveConversationID(readerID, peerID)
	unread, err := s.repo.Unread(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	var marked []domain.MessageID
	for _, id := range unread {
		ok, err := s.markOne(ctx, id)
		if err != nil {
			return len(marked), err
		}
		if ok {
			marked = append(marked, id)
		}
	}
	if len(marked) == 0 {
		return 0, nil
	}
	if to, ok := s.presence.Lookup(peerID); ok {
		s.gateway.Send(ctx, to, domain.Event{
			Name: domain.EventReadReceipt,
			Payload: domain.ReadReceiptPayload{
				ConversationID: conversationID,
				ReaderID:       readerID,
				MessageIDs:     marked,
			},
		})
	}
	return len(marked), nil
}

// Typing forwards a typing indicator to the peer if it is online.
func (s *ChatService) Typing(ctx context.Context, from, to domain.UserID, typing bool) {
	if conn, ok := s.presence.Lookup(to); ok {
		s.gateway.Send(ctx, conn, domain.Event{
			Name:    domain.EventTyping,
			Payload: domain.TypingPayload{FromUserID: from, Typing: typing},
		})
	}
}

// markOne sets IsRead under the message's stripe so it cannot overwrite a
// concurrent reaction or edit.
func (s *ChatService) markOne(ctx context.Context, id domain.MessageID) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if msg.IsRead {
		return false, nil
	}
	msg.IsRead = true
	return true, s.repo.Update(ctx, msg)
}

func (s *ChatService) mutate(ctx context.Context, id domain.MessageID, apply func(*domain.Message) error) (domain.Message, error) {
	if id == "" {
		return domain.Message{}, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}
	unlock := s.lock(id)
	defer unlock()

	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if err := apply(&msg); err != nil {
		return domain.Message{}, err
	}
	if err := s.repo.Update(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// notifyParticipants delivers evt to whichever of sender and receiver is online.
func (s *ChatService) notifyParticipants(ctx context.Context, msg domain.Message, evt domain.Event) {
	for _, userID := range lo.Uniq(msg.Participants()) {
		if conn, ok := s.presence.Lookup(userID); ok {
			s.gateway.Send(ctx, conn, evt)
		}
	}
}
