//go:generate go run go.uber.org/mock/mockgen -source=gateway.go -destination=mocks/mock_gateway.go -package=mocks
package port

import (
	"context"

	"github.com/Wyydra/parley/internal/core/domain"
)

// Gateway pushes events to live connections. Every method is fire-and-forget:
// an unknown or closed connection is not an error.
type Gateway interface {
	Send(ctx context.Context, to domain.ConnectionID, evt domain.Event)
	Broadcast(ctx context.Context, evt domain.Event, except domain.ConnectionID)
	Alive(id domain.ConnectionID) bool
}
