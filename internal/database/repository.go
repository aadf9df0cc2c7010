package database

import (
	"context"
	"time"
)

type RevealRepository interface {
	Ping(ctx context.Context) error
	Close() error

	CreatePerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error)
	UpsertPerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error)
	ListPerformers(ctx context.Context) ([]Performer, error)
	GetPerformerById(ctx context.Context, id string) (Performer, error)
	GetPerformerByUsername(ctx context.Context, username string) (Performer, error)
	GetPerformerBySlug(ctx context.Context, slug string) (Performer, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	DeletePerformer(ctx context.Context, id string) (Performer, error)

	GetRoom(ctx context.Context, id string) (Room, error)
	CreateRoomIfNotExists(ctx context.Context, id string, startAt int) (Room, error)
	UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error)
}
