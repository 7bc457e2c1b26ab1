package domain

import "fmt"

// CallState is the handshake state as observed by a calling client.
// The relay never enforces it.
type CallState string

const (
	CallInitiating     CallState = "initiating"
	CallOfferSent      CallState = "offer_sent"
	CallAnswerReceived CallState = "answer_received"
	CallConnected      CallState = "connected"
	CallTimeout        CallState = "timeout"
	CallError          CallState = "error"
	CallEnded          CallState = "ended"
)

var callTransitions = map[CallState][]CallState{
	CallInitiating:     {CallOfferSent, CallError, CallEnded},
	CallOfferSent:      {CallAnswerReceived, CallTimeout, CallError, CallEnded},
	CallAnswerReceived: {CallConnected, CallError, CallEnded},
	CallConnected:      {CallEnded},
	CallTimeout:        {CallEnded},
	CallError:          {CallEnded},
}

// Next validates a transition of the client-side handshake state machine.
func (s CallState) Next(to CallState) (CallState, error) {
	for _, allowed := range callTransitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("%w: call state %s cannot move to %s", ErrValidation, s, to)
}
