//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks
package port

import (
	"context"

	"github.com/Wyydra/parley/internal/core/domain"
)

type MessageRepository interface {
	Save(ctx context.Context, msg domain.Message) error
	// Get returns domain.ErrNotFound for an unknown id.
	Get(ctx context.Context, id domain.MessageID) (domain.Message, error)
	Update(ctx context.Context, msg domain.Message) error
	// History returns at most limit messages, newest first.
	History(ctx context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error)
	// Unread lists the unread messages addressed to readerID in the conversation.
	Unread(ctx context.Context, conversationID domain.ConversationID, readerID domain.UserID) ([]domain.MessageID, error)
}

type ProfileRepository interface {
	SaveProfile(ctx context.Context, profile domain.Profile) error
	// GetProfile returns domain.ErrNotFound for an unknown user.
	GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error)
}
