package domain

type Role string

const (
	RoleWaiter Role = "waiter"
	RoleCaller Role = "caller"
)

// RoomCapacity is fixed: calls are strictly one-to-one.
const RoomCapacity = 2

type RoomMember struct {
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName"`
	Locale       string       `json:"locale,omitempty"`
}

// CallRoom keeps members in arrival order; index 0 is the waiter.
type CallRoom struct {
	MeetingID string
	Members   []RoomMember
}

// RoleAssignment is what a joiner learns about its position in the room.
type RoleAssignment struct {
	Role Role        `json:"role"`
	Peer *RoomMember `json:"peer,omitempty"`
}

func (r *CallRoom) IndexOf(id ConnectionID) int {
	for i, m := range r.Members {
		if m.ConnectionID == id {
			return i
		}
	}
	return -1
}

// AssignmentFor derives the role of the member at position i.
func (r *CallRoom) AssignmentFor(i int) RoleAssignment {
	if i == 0 {
		return RoleAssignment{Role: RoleWaiter}
	}
	peer := r.Members[0]
	return RoleAssignment{Role: RoleCaller, Peer: &peer}
}

func (r *CallRoom) Remove(id ConnectionID) bool {
	i := r.IndexOf(id)
	if i < 0 {
		return false
	}
	r.Members = append(r.Members[:i], r.Members[i+1:]...)
	return true
}
