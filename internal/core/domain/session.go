package domain

import "time"

// Profile is the snapshot a client sends on join.
type Profile struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Session binds one live connection to one user.
type Session struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"displayName"`
	Profile      Profile      `json:"profile"`
	JoinedAt     time.Time    `json:"joinedAt"`
}
