package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
)

type MessageRepository struct {
	mu       sync.RWMutex
	messages map[domain.MessageID]domain.Message
	// conversation -> ids in insertion order
	threads map[domain.ConversationID][]domain.MessageID
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make(map[domain.MessageID]domain.Message),
		threads:  make(map[domain.ConversationID][]domain.MessageID),
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; ok {
		return fmt.Errorf("%w: message %s already exists", domain.ErrValidation, msg.ID)
	}
	r.messages[msg.ID] = clone(msg)
	ids := append(r.threads[msg.ConversationID], msg.ID)
	sort.SliceStable(ids, func(i, j int) bool {
		return r.messages[ids[i]].CreatedAt.Before(r.messages[ids[j]].CreatedAt)
	})
	r.threads[msg.ConversationID] = ids
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	return clone(msg), nil
}

func (r *MessageRepository) Update(ctx context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; !ok {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, msg.ID)
	}
	r.messages[msg.ID] = clone(msg)
	return nil
}

func (r *MessageRepository) History(ctx context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.threads[conversationID]
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	out := make([]domain.Message, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(r.messages[ids[i]]))
	}
	return out, nil
}

func (r *MessageRepository) Unread(ctx context.Context, conversationID domain.ConversationID, readerID domain.UserID) ([]domain.MessageID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []domain.MessageID
	for _, id := range r.threads[conversationID] {
		msg := r.messages[id]
		if msg.ReceiverID == readerID && !msg.IsRead {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// clone detaches the reaction slice so callers cannot mutate stored state.
func clone(msg domain.Message) domain.Message {
	msg.Reactions = append([]domain.Reaction{}, msg.Reactions...)
	return msg
}
