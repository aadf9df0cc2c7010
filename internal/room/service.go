package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

// Publisher receives every committed room state.
type Publisher interface {
	Publish(state types.RoomState) error
}

type Options struct {
	// DefaultStartAt is the offset for videos stored without one.
	DefaultStartAt int
	// AdminRoomId may be created implicitly like a performer room.
	AdminRoomId string
}

type Service struct {
	repo      database.RevealRepository
	publisher Publisher
	stats     stats.StatsProvider
	logger    zerolog.Logger
	opts      Options
}

func NewService(repo database.RevealRepository, publisher Publisher, st stats.StatsProvider, logger zerolog.Logger, opts Options) *Service {
	if opts.DefaultStartAt < 0 {
		opts.DefaultStartAt = DefaultStartAt
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		stats:     st,
		logger:    logger,
		opts:      opts,
	}
}

func (s *Service) Get(ctx context.Context, roomId string) (types.RoomState, error) {
	r, err := s.repo.GetRoom(ctx, roomId)
	if err != nil {
		return types.RoomState{}, err
	}
	return r.State(), nil
}

// Ensure returns the room, creating it idle when the id belongs to a
// performer or to the admin room. Unknown ids yield sql.ErrNoRows.
func (s *Service) Ensure(ctx context.Context, roomId string) (types.RoomState, error) {
	r, err := s.repo.GetRoom(ctx, roomId)
	if err == nil {
		return r.State(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.RoomState{}, err
	}

	if roomId != s.opts.AdminRoomId {
		if _, err := s.repo.GetPerformerBySlug(ctx, roomId); err != nil {
			return types.RoomState{}, err
		}
	}

	r, err = s.repo.CreateRoomIfNotExists(ctx, roomId, s.opts.DefaultStartAt)
	if err != nil {
		return types.RoomState{}, fmt.Errorf("create room: %w", err)
	}

	s.logger.Info().Str("room_id", roomId).Msg("created room on first visit")
	return r.State(), nil
}

// Visit is a spectator landing on the room path: every performance
// starts from a fresh idle room.
func (s *Service) Visit(ctx context.Context, roomId string) (types.RoomState, error) {
	if _, err := s.Ensure(ctx, roomId); err != nil {
		return types.RoomState{}, err
	}
	return s.Reset(ctx, roomId, 0)
}

func (s *Service) Arm(ctx context.Context, roomId string, videoId *string, startAt *int, expectedVersion int) (types.RoomState, error) {
	return s.Transition(ctx, roomId, Transition{
		Op:              OpArm,
		VideoId:         videoId,
		StartAt:         startAt,
		ExpectedVersion: expectedVersion,
	})
}

func (s *Service) SetVideo(ctx context.Context, roomId, videoId string, startAt int, expectedVersion int) (types.RoomState, error) {
	return s.Transition(ctx, roomId, Transition{
		Op:              OpSetVideo,
		VideoId:         &videoId,
		StartAt:         &startAt,
		ExpectedVersion: expectedVersion,
	})
}

func (s *Service) Reveal(ctx context.Context, roomId string, expectedVersion int) (types.RoomState, error) {
	return s.Transition(ctx, roomId, Transition{Op: OpReveal, ExpectedVersion: expectedVersion})
}

func (s *Service) Reset(ctx context.Context, roomId string, expectedVersion int) (types.RoomState, error) {
	return s.Transition(ctx, roomId, Transition{Op: OpReset, ExpectedVersion: expectedVersion})
}

// Transition reads the room, applies t and writes the result with a
// compare-and-swap on the version that was read. A transition that
// changes nothing succeeds without a write. Nothing is retried.
func (s *Service) Transition(ctx context.Context, roomId string, t Transition) (types.RoomState, error) {
	if t.Op == OpSetVideo && t.StartAt == nil {
		startAt := s.opts.DefaultStartAt
		t.StartAt = &startAt
	}

	current, err := s.repo.GetRoom(ctx, roomId)
	if err != nil {
		return types.RoomState{}, err
	}

	if t.ExpectedVersion != 0 && t.ExpectedVersion != current.Version {
		return types.RoomState{}, fmt.Errorf("%w: expected version %d, have %d",
			ErrVersionConflict, t.ExpectedVersion, current.Version)
	}

	state := current.State()
	next, err := Apply(state, t)
	if err != nil {
		return types.RoomState{}, err
	}

	if t.Op == OpReveal && next.VideoId == nil {
		s.logger.Warn().Str("room_id", roomId).Msg("revealing room without a video")
	}

	if !Changed(state, next) {
		return state, nil
	}

	updated, err := s.repo.UpdateRoom(ctx, database.UpdateRoomParams{
		Id:              roomId,
		Status:          next.Status,
		VideoId:         next.VideoId,
		StartAt:         next.StartAt,
		ExpectedVersion: current.Version,
	})
	if err != nil {
		return types.RoomState{}, err
	}

	s.stats.Incr(stats.NumTransitions)
	s.logger.Debug().
		Str("room_id", roomId).
		Str("op", string(t.Op)).
		Str("status", string(updated.Status)).
		Int("version", updated.Version).
		Msg("room transition committed")

	committed := updated.State()
	if err := s.publisher.Publish(committed); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomId).Msg("failed to publish room state")
	}

	return committed, nil
}
