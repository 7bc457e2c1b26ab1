package ws

import (
	"errors"

	"github.com/Wyydra/parley/internal/core/domain"
)

// ErrSendBufferFull is returned by Client.Send when the connection cannot keep up.
var ErrSendBufferFull = errors.New("send buffer full")

// Client is one live connection as seen by the Hub. Send must not block.
type Client interface {
	ID() domain.ConnectionID
	Send(evt domain.Event) error
	Close() error
}
