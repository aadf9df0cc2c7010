package types

import (
	"time"
)

type Role string

const (
	RolePerformer Role = "PERFORMER"
	RoleAdmin     Role = "ADMIN"
)

type RoomStatus string

const (
	RoomStatusIdle     RoomStatus = "idle"
	RoomStatusArmed    RoomStatus = "armed"
	RoomStatusRevealed RoomStatus = "revealed"
)

type RoomState struct {
	Id        string     `json:"id"`
	Status    RoomStatus `json:"status"`
	VideoId   *string    `json:"video_id"`
	StartAt   int        `json:"start_at"`
	Version   int        `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Performer struct {
	Id        string     `json:"id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Slug      string     `json:"slug"`
	Role      Role       `json:"role"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Session is the resolved identity of a logged in client. It is never
// persisted; it travels inside the session token.
type Session struct {
	PerformerId string `json:"performer_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	RoomId      string `json:"room_id"`
}

type Video struct {
	VideoId   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// CanControl reports whether the session may drive transitions on roomId.
func (s Session) CanControl(roomId string) bool {
	return s.Role == RoleAdmin || s.RoomId == roomId
}
