package client

import (
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
)

// Call is the local view of one negotiation, keyed by its call id.
type Call struct {
	ID string

	mu    sync.Mutex
	state domain.CallState
}

func NewCall(id string) *Call {
	return &Call{ID: id, state: domain.CallInitiating}
}

func (c *Call) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Advance moves the call to the next state, rejecting transitions the
// handshake does not allow.
func (c *Call) Advance(to domain.CallState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.state.Next(to)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}
