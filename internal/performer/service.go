package performer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-reveal/internal/auth"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

// ErrProtectedPerformer is returned when deleting the administrator or
// the record bound to the admin room.
var ErrProtectedPerformer = errors.New("performer is protected")

// DeletePublisher tells attached clients a room is gone.
type DeletePublisher interface {
	PublishDeleted(roomId string) error
}

type Options struct {
	AdminRoomId    string
	DefaultStartAt int
}

type Service struct {
	repo      database.RevealRepository
	hasher    auth.PasswordHasher
	publisher DeletePublisher
	log       zerolog.Logger
	opts      Options
	newId     func() (string, error)
}

func NewService(repo database.RevealRepository, hasher auth.PasswordHasher, publisher DeletePublisher, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		publisher: publisher,
		log:       logger,
		opts:      opts,
		newId:     shortid.Generate,
	}
}

// Create validates req and stores the performer with an idle room in one
// transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (types.Performer, types.RoomState, error) {
	req = req.normalize()

	existing, err := s.repo.ListPerformers(ctx)
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("list performers: %w", err)
	}

	if verr := Validate(req, existing, s.opts.AdminRoomId); verr != nil {
		return types.Performer{}, types.RoomState{}, verr
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.newId()
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("generate id: %w", err)
	}

	p, r, err := s.repo.CreatePerformer(ctx, database.CreatePerformerParams{
		Id:           id,
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: hash,
		Slug:         req.Slug,
		Role:         types.RolePerformer,
		StartAt:      s.opts.DefaultStartAt,
	})
	if err != nil {
		return types.Performer{}, types.RoomState{}, uniqueToValidation(err)
	}

	s.log.Info().Str("performer_id", p.Id).Str("slug", p.Slug).Msg("created performer")
	return p.Public(), r.State(), nil
}

// uniqueToValidation maps constraint violations from a concurrent create
// back onto the form fields.
func uniqueToValidation(err error) error {
	switch {
	case errors.Is(err, database.ErrDuplicateSlug):
		return &ValidationError{Fields: map[string]string{"slug": "is already in use"}}
	case errors.Is(err, database.ErrDuplicateUsername):
		return &ValidationError{Fields: map[string]string{"username": "is already in use"}}
	default:
		return fmt.Errorf("create performer: %w", err)
	}
}

func (s *Service) List(ctx context.Context) ([]types.Performer, error) {
	performers, err := s.repo.ListPerformers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list performers: %w", err)
	}

	out := make([]types.Performer, 0, len(performers))
	for _, p := range performers {
		out = append(out, p.Public())
	}
	return out, nil
}

// Delete removes the performer and its room, then tells any attached
// clients the room no longer exists.
func (s *Service) Delete(ctx context.Context, id string) (types.Performer, error) {
	existing, err := s.repo.GetPerformerById(ctx, id)
	if err != nil {
		return types.Performer{}, err
	}
	if existing.Role == types.RoleAdmin || existing.Slug == s.opts.AdminRoomId {
		return types.Performer{}, ErrProtectedPerformer
	}

	p, err := s.repo.DeletePerformer(ctx, id)
	if err != nil {
		return types.Performer{}, err
	}

	if err := s.publisher.PublishDeleted(p.Slug); err != nil {
		s.log.Error().Err(err).Str("room_id", p.Slug).Msg("failed to publish room deletion")
	}

	s.log.Info().Str("performer_id", p.Id).Str("slug", p.Slug).Msg("deleted performer")
	return p.Public(), nil
}

type SeedRequest struct {
	Name     string
	Username string
	Password string
}

// Seed creates or replaces the administrator record bound to the admin
// room and resets that room.
func (s *Service) Seed(ctx context.Context, req SeedRequest) (types.Performer, types.RoomState, error) {
	username := auth.NormalizeUsername(req.Username)
	password := strings.TrimSpace(req.Password)
	if !emailRegexp.MatchString(username) {
		return types.Performer{}, types.RoomState{}, &ValidationError{Fields: map[string]string{"username": "must be a valid email address"}}
	}
	if len(password) < minPasswordLength {
		return types.Performer{}, types.RoomState{}, &ValidationError{Fields: map[string]string{"password": fmt.Sprintf("must be at least %d characters", minPasswordLength)}}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.newId()
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("generate id: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Administrator"
	}

	p, r, err := s.repo.UpsertPerformer(ctx, database.CreatePerformerParams{
		Id:           id,
		Name:         name,
		Username:     username,
		PasswordHash: hash,
		Slug:         s.opts.AdminRoomId,
		Role:         types.RoleAdmin,
		StartAt:      s.opts.DefaultStartAt,
	})
	if err != nil {
		return types.Performer{}, types.RoomState{}, fmt.Errorf("seed admin: %w", err)
	}

	return p.Public(), r.State(), nil
}
