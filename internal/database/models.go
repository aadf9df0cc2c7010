package database

import (
	"time"

	"github.com/npezzotti/go-reveal/internal/types"
)

type Performer struct {
	Id           string
	Name         string
	Username     string
	PasswordHash string
	Slug         string
	Role         types.Role
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips the password hash.
func (p Performer) Public() types.Performer {
	return types.Performer{
		Id:        p.Id,
		Name:      p.Name,
		Username:  p.Username,
		Slug:      p.Slug,
		Role:      p.Role,
		LastLogin: p.LastLogin,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type Room struct {
	Id        string
	Status    types.RoomStatus
	VideoId   *string
	StartAt   int
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Room) State() types.RoomState {
	return types.RoomState{
		Id:        r.Id,
		Status:    r.Status,
		VideoId:   r.VideoId,
		StartAt:   r.StartAt,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
}

type CreatePerformerParams struct {
	Id           string
	Name         string
	Username     string
	PasswordHash string
	Slug         string
	Role         types.Role
	StartAt      int
}

// UpdateRoomParams is a compare-and-swap write: it only applies when the
// stored version still equals ExpectedVersion.
type UpdateRoomParams struct {
	Id              string
	Status          types.RoomStatus
	VideoId         *string
	StartAt         int
	ExpectedVersion int
}
