//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=mocks/mock_presence.go -package=mocks
package port

import "github.com/Wyydra/parley/internal/core/domain"

// Presence is the read side of the presence registry.
type Presence interface {
	Lookup(userID domain.UserID) (domain.ConnectionID, bool)
	Session(id domain.ConnectionID) (domain.Session, bool)
}
