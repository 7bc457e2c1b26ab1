package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// PresenceService owns the live session table. One connection per user: a newer
// connection for the same user replaces the older one.
type PresenceService struct {
	mu       sync.RWMutex
	byConn   map[domain.ConnectionID]domain.Session
	byUser   map[domain.UserID]domain.ConnectionID
	profiles port.ProfileRepository
	gateway  port.Gateway
	clock    clock.Clock
}

func NewPresenceService(profiles port.ProfileRepository, gateway port.Gateway, clk clock.Clock) *PresenceService {
	return &PresenceService{
		byConn:   make(map[domain.ConnectionID]domain.Session),
		byUser:   make(map[domain.UserID]domain.ConnectionID),
		profiles: profiles,
		gateway:  gateway,
		clock:    clk,
	}
}

// Register binds the connection to profile.UserID. Registering the same pair
// twice is a no-op apart from refreshing the profile.
func (s *PresenceService) Register(ctx context.Context, id domain.ConnectionID, profile domain.Profile) (domain.Session, error) {
	if id == "" || profile.UserID == "" {
		return domain.Session{}, fmt.Errorf("%w: connection and user are required", domain.ErrValidation)
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.UserID.String()
	}

	s.mu.Lock()
	existing, known := s.byConn[id]
	var displaced domain.UserID
	if known && existing.UserID != profile.UserID && s.byUser[existing.UserID] == id {
		// the connection switches identity
		delete(s.byUser, existing.UserID)
		displaced = existing.UserID
	}
	if prev, ok := s.byUser[profile.UserID]; ok && prev != id {
		delete(s.byConn, prev)
		log.Info().Str("user_id", profile.UserID.String()).Str("replaced_conn_id", prev.String()).Msg("Session replaced by newer connection")
	}
	session := domain.Session{
		ConnectionID: id,
		UserID:       profile.UserID,
		DisplayName:  profile.DisplayName,
		Profile:      profile,
		JoinedAt:     s.clock.Now().UTC(),
	}
	if known && existing.UserID == profile.UserID {
		session.JoinedAt = existing.JoinedAt
	}
	s.byConn[id] = session
	s.byUser[profile.UserID] = id
	fresh := !known || existing.UserID != profile.UserID
	s.mu.Unlock()

	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		log.Error().Err(err).Str("user_id", profile.UserID.String()).Msg("Failed to persist profile")
	}

	if displaced != "" {
		s.gateway.Broadcast(ctx, domain.Event{
			Name:    domain.EventPresenceOffline,
			Payload: domain.PresencePayload{UserID: displaced, ConnectionID: id},
		}, id)
		log.Info().Str("user_id", displaced.String()).Str("conn_id", id.String()).Msg("User offline")
	}
	if fresh {
		s.gateway.Broadcast(ctx, domain.Event{
			Name: domain.EventPresenceOnline,
			Payload: domain.PresencePayload{
				UserID:       session.UserID,
				ConnectionID: id,
				DisplayName:  session.DisplayName,
			},
		}, id)
		log.Info().Str("user_id", session.UserID.String()).Str("conn_id", id.String()).Msg("User online")
	}
	s.gateway.Send(ctx, id, domain.Event{
		Name:    domain.EventPresenceSnapshot,
		Payload: domain.PresenceSnapshotPayload{Users: lo.Map(s.Online(), toPresence)},
	})
	return session, nil
}

// Unregister drops the session and announces it. It reports false for an
// unknown or already replaced connection, in which case nothing is broadcast.
func (s *PresenceService) Unregister(ctx context.Context, id domain.ConnectionID) bool {
	s.mu.Lock()
	session, ok := s.byConn[id]
	if ok {
		delete(s.byConn, id)
		if s.byUser[session.UserID] == id {
			delete(s.byUser, session.UserID)
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.gateway.Broadcast(ctx, domain.Event{
		Name:    domain.EventPresenceOffline,
		Payload: domain.PresencePayload{UserID: session.UserID, ConnectionID: id},
	}, id)
	log.Info().Str("user_id", session.UserID.String()).Str("conn_id", id.String()).Msg("User offline")
	return true
}

func (s *PresenceService) Lookup(userID domain.UserID) (domain.ConnectionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	return id, ok
}

func (s *PresenceService) Session(id domain.ConnectionID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byConn[id]
	return session, ok
}

// Online returns every live session, oldest first.
func (s *PresenceService) Online() []domain.Session {
	s.mu.RLock()
	sessions := lo.Values(s.byConn)
	s.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].JoinedAt.Equal(sessions[j].JoinedAt) {
			return sessions[i].UserID < sessions[j].UserID
		}
		return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
	})
	return sessions
}

func toPresence(s domain.Session, _ int) domain.PresencePayload {
	return domain.PresencePayload{UserID: s.UserID, ConnectionID: s.ConnectionID, DisplayName: s.DisplayName}
}
