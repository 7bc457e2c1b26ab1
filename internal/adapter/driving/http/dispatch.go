package http

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/metrics"
	"github.com/Wyydra/parley/internal/protocol"
)

var errRateLimited = fmt.Errorf("%w: rate limit exceeded", domain.ErrValidation)

// dispatch handles one inbound event. Events of one connection are processed
// in arrival order.
func (h *Handler) dispatch(ctx context.Context, c *WSClient, env protocol.Envelope) error {
	switch env.Event {
	case protocol.Join:
		p, err := protocol.Decode[protocol.JoinPayload](env.Data)
		if err != nil {
			return err
		}
		_, err = h.Presence.Register(ctx, c.id, p.Profile())
		return err

	case protocol.MessageSend:
		p, err := protocol.Decode[protocol.SendPayload](env.Data)
		if err != nil {
			return err
		}
		session, err := h.session(c)
		if err != nil {
			return err
		}
		draft := p.Draft()
		if draft.SenderID == "" {
			draft.SenderID = session.UserID
		}
		_, err = h.Chat.Send(ctx, c.id, draft)
		return err

	case protocol.HistoryRequest:
		p, err := protocol.Decode[protocol.HistoryPayload](env.Data)
		if err != nil {
			return err
		}
		user, err := h.actor(c, p.UserID)
		if err != nil {
			return err
		}
		result, err := h.Chat.History(ctx, user, p.TargetUserID, p.Limit)
		if err != nil {
			return err
		}
		h.Hub.Send(ctx, c.id, domain.Event{Name: domain.EventHistoryResult, Payload: result})
		return nil

	case protocol.ReactionToggle:
		p, err := protocol.Decode[protocol.ReactionPayload](env.Data)
		if err != nil {
			return err
		}
		user, err := h.actor(c, p.UserID)
		if err != nil {
			return err
		}
		_, err = h.Chat.ToggleReaction(ctx, p.MessageID, user, p.Emoji)
		return err

	case protocol.EditRequest:
		p, err := protocol.Decode[protocol.EditPayload](env.Data)
		if err != nil {
			return err
		}
		user, err := h.actor(c, p.UserID)
		if err != nil {
			return err
		}
		_, err = h.Chat.Edit(ctx, p.MessageID, user, p.NewText)
		return err

	case protocol.DeleteRequest:
		p, err := protocol.Decode[protocol.DeletePayload](env.Data)
		if err != nil {
			return err
		}
		user, err := h.actor(c, p.UserID)
		if err != nil {
			return err
		}
		_, err = h.Chat.Delete(ctx, p.MessageID, user)
		return err

	case protocol.ReadMark:
		p, err := protocol.Decode[protocol.ReadPayload](env.Data)
		if err != nil {
			return err
		}
		session, err := h.session(c)
		if err != nil {
			return err
		}
		_, err = h.Chat.MarkRead(ctx, session.UserID, p.PeerID)
		return err

	case protocol.Typing:
		p, err := protocol.Decode[protocol.TypingPayload](env.Data)
		if err != nil {
			return err
		}
		session, err := h.session(c)
		if err != nil {
			return err
		}
		h.Chat.Typing(ctx, session.UserID, p.ToUserID, p.Typing)
		return nil

	case protocol.SignalOffer, protocol.SignalAnswer, protocol.SignalCandidate, protocol.SignalEnd:
		p, err := protocol.Decode[protocol.SignalPayload](env.Data)
		if err != nil {
			return err
		}
		h.relay(ctx, c, env.Event, p)
		return nil

	case protocol.RoomJoin:
		p, err := protocol.Decode[protocol.RoomJoinPayload](env.Data)
		if err != nil {
			return err
		}
		name := p.DisplayName
		if session, ok := h.Presence.Session(c.id); ok && name == "" {
			name = session.DisplayName
		}
		assignment, err := h.Rooms.Join(ctx, p.MeetingID, c.id, name, p.Locale)
		if err != nil {
			return err
		}
		h.Hub.Send(ctx, c.id, domain.Event{Name: domain.EventRoomRole, Payload: assignment})
		return nil

	case protocol.RoomLeave:
		h.Rooms.Leave(ctx, c.id)
		return nil

	default:
		return fmt.Errorf("%w: unknown event %q", domain.ErrValidation, env.Event)
	}
}

// relay forwards a signal. Only an offer is addressed by user id; the rest go
// straight to the peer connection learnt from the offer or the room.
func (h *Handler) relay(ctx context.Context, c *WSClient, event string, p protocol.SignalPayload) {
	target := domain.ConnectionID(p.TargetID)
	switch event {
	case protocol.SignalOffer:
		h.Signaling.RelayOffer(ctx, c.id, domain.UserID(p.TargetID), p.Payload, p.CallID)
	case protocol.SignalAnswer:
		h.Signaling.RelayAnswer(ctx, c.id, target, p.Payload, p.CallID)
	case protocol.SignalCandidate:
		h.Signaling.RelayCandidate(ctx, c.id, target, p.Payload, p.CallID)
	case protocol.SignalEnd:
		h.Signaling.EndCall(ctx, c.id, target, p.CallID)
	}
}

func (h *Handler) session(c *WSClient) (domain.Session, error) {
	session, ok := h.Presence.Session(c.id)
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: join first", domain.ErrPermission)
	}
	return session, nil
}

// actor resolves the acting user from the session. A payload naming someone
// else is rejected.
func (h *Handler) actor(c *WSClient, claimed domain.UserID) (domain.UserID, error) {
	session, err := h.session(c)
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != session.UserID {
		return "", fmt.Errorf("%w: user %s does not match session", domain.ErrValidation, claimed)
	}
	return session.UserID, nil
}

// reject reports a failed event to the originating connection only.
func (h *Handler) reject(ctx context.Context, c *WSClient, event string, err error) {
	message := err.Error()
	outcome := "rejected"
	if !isDomainError(err) {
		c.log.Error().Err(err).Str("event", event).Msg("Failed to handle event")
		message = "internal error"
		outcome = "failed"
	} else {
		c.log.Debug().Err(err).Str("event", event).Msg("Event rejected")
	}
	if !protocol.Known(event) {
		event = "unknown"
	}
	metrics.EventsReceived.WithLabelValues(event, outcome).Inc()
	h.Hub.Send(ctx, c.id, domain.Event{Name: domain.EventError, Payload: domain.ErrorPayload{Message: message}})
}

func isDomainError(err error) bool {
	for _, target := range []error{domain.ErrValidation, domain.ErrNotFound, domain.ErrPermission, domain.ErrRoomFull} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
