package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/Wyydra/parley/internal/core/port"
	"github.com/rs/zerolog/log"
)

// RoomCoordinator assigns waiter and caller roles for two-party rooms so that
// exactly one side creates the offer.
type RoomCoordinator struct {
	mu      sync.Mutex
	rooms   map[string]*domain.CallRoom
	gateway port.Gateway
}

func NewRoomCoordinator(gateway port.Gateway) *RoomCoordinator {
	return &RoomCoordinator{
		rooms:   make(map[string]*domain.CallRoom),
		gateway: gateway,
	}
}

// Join places the connection in the meeting. The first member waits; the second
// becomes the caller and learns who the waiter is, while the waiter is sent
// peer:incoming. A third member is rejected with domain.ErrRoomFull.
func (c *RoomCoordinator) Join(ctx context.Context, meetingID string, id domain.ConnectionID, displayName, locale string) (domain.RoleAssignment, error) {
	if meetingID == "" || id == "" {
		return domain.RoleAssignment{}, fmt.Errorf("%w: meeting and connection are required", domain.ErrValidation)
	}

	c.mu.Lock()
	room, ok := c.rooms[meetingID]
	if !ok {
		room = &domain.CallRoom{MeetingID: meetingID}
		c.rooms[meetingID] = room
	}
	c.prune(room, id)

	if i := room.IndexOf(id); i >= 0 {
		assignment := room.AssignmentFor(i)
		c.mu.Unlock()
		return assignment, nil
	}
	if len(room.Members) >= domain.RoomCapacity {
		c.mu.Unlock()
		return domain.RoleAssignment{}, fmt.Errorf("%w: meeting %s", domain.ErrRoomFull, meetingID)
	}
	joiner := domain.RoomMember{ConnectionID: id, DisplayName: displayName, Locale: locale}
	room.Members = append(room.Members, joiner)
	assignment := room.AssignmentFor(len(room.Members) - 1)
	c.mu.Unlock()

	log.Info().Str("meeting_id", meetingID).Str("conn_id", id.String()).Str("role", string(assignment.Role)).Msg("Joined room")
	if assignment.Role == domain.RoleCaller {
		c.gateway.Send(ctx, assignment.Peer.ConnectionID, domain.Event{Name: domain.EventPeerIncoming, Payload: joiner})
	}
	return assignment, nil
}

// Leave removes the connection from every room it is in and drops empty rooms.
func (c *RoomCoordinator) Leave(ctx context.Context, id domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for meetingID, room := range c.rooms {
		if room.Remove(id) {
			log.Info().Str("meeting_id", meetingID).Str("conn_id", id.String()).Msg("Left room")
		}
		if len(room.Members) == 0 {
			delete(c.rooms, meetingID)
		}
	}
}

func (c *RoomCoordinator) Rooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// prune drops members whose connection is gone. Caller holds c.mu.
func (c *RoomCoordinator) prune(room *domain.CallRoom, joiner domain.ConnectionID) {
	for _, m := range append([]domain.RoomMember{}, room.Members...) {
		if m.ConnectionID != joiner && !c.gateway.Alive(m.ConnectionID) {
			room.Remove(m.ConnectionID)
			log.Debug().Str("meeting_id", room.MeetingID).Str("conn_id", m.ConnectionID.String()).Msg("Pruned stale room member")
		}
	}
}
