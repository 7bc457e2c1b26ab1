package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/protocol"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultRingTimeout is how long an offer waits for an answer.
const DefaultRingTimeout = 30 * time.Second

// Emitter is satisfied by *Manager.
type Emitter interface {
	Emit(event string, data any) error
}

type tracked struct {
	call  *Call
	peer  domain.ConnectionID
	timer *clock.Timer
}

// Calls tracks the calls this client takes part in and sends the signal
// events that drive them.
type Calls struct {
	out     Emitter
	clock   clock.Clock
	timeout time.Duration

	mu    sync.Mutex
	calls map[string]*tracked
}

func NewCalls(out Emitter, clk clock.Clock, timeout time.Duration) *Calls {
	if timeout <= 0 {
		timeout = DefaultRingTimeout
	}
	return &Calls{out: out, clock: clk, timeout: timeout, calls: make(map[string]*tracked)}
}

// Ring sends an offer to a user. Without an answer before the timeout the
// call moves to timeout and then ended.
func (c *Calls) Ring(to domain.UserID, offer json.RawMessage) (*Call, error) {
	call := NewCall(uuid.NewString())
	err := c.out.Emit(protocol.SignalOffer, protocol.SignalPayload{TargetID: to.String(), Payload: offer, CallID: call.ID})
	if err != nil {
		_ = call.Advance(domain.CallError)
		return call, err
	}
	if err := call.Advance(domain.CallOfferSent); err != nil {
		return call, err
	}

	t := &tracked{call: call}
	t.timer = c.clock.AfterFunc(c.timeout, func() { c.expire(call.ID) })
	c.mu.Lock()
	c.calls[call.ID] = t
	c.mu.Unlock()
	return call, nil
}

// Accept answers an incoming offer on the connection it came from.
func (c *Calls) Accept(offer domain.SignalPayload, answer json.RawMessage) (*Call, error) {
	if offer.CallID == "" {
		return nil, fmt.Errorf("%w: offer without call id", domain.ErrValidation)
	}
	err := c.out.Emit(protocol.SignalAnswer, protocol.SignalPayload{
		TargetID: offer.FromConnectionID.String(),
		Payload:  answer,
		CallID:   offer.CallID,
	})
	if err != nil {
		return nil, err
	}
	call := NewCall(offer.CallID)
	c.mu.Lock()
	c.calls[call.ID] = &tracked{call: call, peer: offer.FromConnectionID}
	c.mu.Unlock()
	return call, nil
}

// Answered records the callee's answer and marks the call connected.
func (c *Calls) Answered(answer domain.SignalPayload) (*Call, error) {
	t, ok := c.get(answer.CallID)
	if !ok {
		return nil, fmt.Errorf("%w: call %s", domain.ErrNotFound, answer.CallID)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	if err := t.call.Advance(domain.CallAnswerReceived); err != nil {
		return t.call, err
	}
	c.mu.Lock()
	t.peer = answer.FromConnectionID
	c.mu.Unlock()
	return t.call, t.call.Advance(domain.CallConnected)
}

// Hangup ends a call locally and tells the peer when it is known.
func (c *Calls) Hangup(callID string) error {
	t, ok := c.remove(callID)
	if !ok {
		return fmt.Errorf("%w: call %s", domain.ErrNotFound, callID)
	}
	_ = t.call.Advance(domain.CallEnded)
	c.mu.Lock()
	peer := t.peer
	c.mu.Unlock()
	if peer == "" {
		return nil
	}
	return c.out.Emit(protocol.SignalEnd, protocol.SignalPayload{TargetID: peer.String(), CallID: callID})
}

// Ended handles signal:end from the peer.
func (c *Calls) Ended(callID string) (*Call, bool) {
	t, ok := c.remove(callID)
	if !ok {
		return nil, false
	}
	_ = t.call.Advance(domain.CallEnded)
	return t.call, true
}

// Active lists the ids of calls that have not ended.
func (c *Calls) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.calls))
	for id := range c.calls {
		ids = append(ids, id)
	}
	return ids
}

func (c *Calls) expire(callID string) {
	t, ok := c.get(callID)
	if !ok || t.call.Advance(domain.CallTimeout) != nil {
		return
	}
	log.Info().Str("call_id", callID).Msg("Call not answered in time")
	c.remove(callID)
	_ = t.call.Advance(domain.CallEnded)
}

func (c *Calls) get(callID string) (*tracked, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.calls[callID]
	return t, ok
}

func (c *Calls) remove(callID string) (*tracked, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.calls[callID]
	if ok {
		delete(c.calls, callID)
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	return t, ok
}
