package service

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/core/port"
	"github.com/rs/zerolog/log"
)

// SignalingService forwards call negotiation between two endpoints. Payloads
// are opaque and never inspected; the endpoints own protocol correctness.
type SignalingService struct {
	presence port.Presence
	gateway  port.Gateway
}

func NewSignalingService(presence port.Presence, gateway port.Gateway) *SignalingService {
	return &SignalingService{
		presence: presence,
		gateway:  gateway,
	}
}

// RelayOffer is the only step addressed by user id, since the caller does not
// know the callee's connection yet. An offline callee drops the offer.
func (s *SignalingService) RelayOffer(ctx context.Context, from domain.ConnectionID, targetUserID domain.UserID, offer json.RawMessage, callID string) {
	to, ok := s.presence.Lookup(targetUserID)
	if !ok {
		log.Debug().Str("target_user_id", targetUserID.String()).Str("call_id", callID).Msg("Offer dropped, target offline")
		return
	}
	payload := s.payload(from, callID)
	payload.Offer = offer
	s.gateway.Send(ctx, to, domain.Event{Name: domain.EventSignalOffer, Payload: payload})
}

func (s *SignalingService) RelayAnswer(ctx context.Context, from, to domain.ConnectionID, answer json.RawMessage, callID string) {
	payload := s.payload(from, callID)
	payload.Answer = answer
	s.gateway.Send(ctx, to, domain.Event{Name: domain.EventSignalAnswer, Payload: payload})
}

// RelayCandidate may be called many times per call; duplicates are forwarded as is.
func (s *SignalingService) RelayCandidate(ctx context.Context, from, to domain.ConnectionID, candidate json.RawMessage, callID string) {
	payload := s.payload(from, callID)
	payload.Candidate = candidate
	s.gateway.Send(ctx, to, domain.Event{Name: domain.EventSignalCandidate, Payload: payload})
}

func (s *SignalingService) EndCall(ctx context.Context, from, to domain.ConnectionID, callID string) {
	s.gateway.Send(ctx, to, domain.Event{Name: domain.EventSignalEnd, Payload: s.payload(from, callID)})
}

func (s *SignalingService) payload(from domain.ConnectionID, callID string) domain.SignalPayload {
	p := domain.SignalPayload{CallID: callID, FromConnectionID: from}
	if session, ok := s.presence.Session(from); ok {
		p.FromUserID = session.UserID
	}
	return p
}
