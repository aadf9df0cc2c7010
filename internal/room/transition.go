package room

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/types"
)

// DefaultStartAt is the playback offset used when a video is stored
// without one.
const DefaultStartAt = 12

type Op string

const (
	OpArm      Op = "arm"
	OpSetVideo Op = "set_video"
	OpReveal   Op = "reveal"
	OpReset    Op = "reset"
)

var (
	ErrIllegalTransition = errors.New("transition not allowed from current status")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrVersionConflict   = database.ErrVersionConflict
)

type Transition struct {
	Op              Op      `json:"op"`
	VideoId         *string `json:"video_id,omitempty"`
	StartAt         *int    `json:"start_at,omitempty"`
	ExpectedVersion int     `json:"expected_version,omitempty"`
}

func (t Transition) validate() error {
	switch t.Op {
	case OpArm, OpReveal, OpReset:
	case OpSetVideo:
		if t.VideoId == nil {
			return fmt.Errorf("%w: set_video requires a video id", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidTransition, t.Op)
	}

	if t.VideoId != nil && *t.VideoId == "" {
		return fmt.Errorf("%w: empty video id", ErrInvalidTransition)
	}
	if t.StartAt != nil && *t.StartAt < 0 {
		return fmt.Errorf("%w: negative start offset", ErrInvalidTransition)
	}
	if t.ExpectedVersion < 0 {
		return fmt.Errorf("%w: negative expected version", ErrInvalidTransition)
	}

	return nil
}

// Apply computes the room state that results from t. It never touches
// Version or UpdatedAt; those belong to the store.
//
//	idle     -> arm, set_video -> armed
//	armed    -> arm, set_video -> armed; reveal -> revealed
//	revealed -> set_video, reveal -> revealed
//	any      -> reset -> idle (video cleared)
func Apply(state types.RoomState, t Transition) (types.RoomState, error) {
	if err := t.validate(); err != nil {
		return state, err
	}

	next := state
	switch t.Op {
	case OpArm:
		if state.Status == types.RoomStatusRevealed {
			return state, fmt.Errorf("%w: arm from %s", ErrIllegalTransition, state.Status)
		}
		next.Status = types.RoomStatusArmed
		if t.VideoId != nil {
			next.VideoId = copyString(t.VideoId)
			if t.StartAt != nil {
				next.StartAt = *t.StartAt
			}
		}
	case OpSetVideo:
		if state.Status == types.RoomStatusIdle {
			next.Status = types.RoomStatusArmed
		}
		next.VideoId = copyString(t.VideoId)
		next.StartAt = DefaultStartAt
		if t.StartAt != nil {
			next.StartAt = *t.StartAt
		}
	case OpReveal:
		if state.Status == types.RoomStatusIdle {
			return state, fmt.Errorf("%w: reveal from %s", ErrIllegalTransition, state.Status)
		}
		next.Status = types.RoomStatusRevealed
	case OpReset:
		next.Status = types.RoomStatusIdle
		next.VideoId = nil
	}

	return next, nil
}

// Changed reports whether b differs from a in anything a client renders.
func Changed(a, b types.RoomState) bool {
	if a.Status != b.Status || a.StartAt != b.StartAt {
		return true
	}
	if (a.VideoId == nil) != (b.VideoId == nil) {
		return true
	}
	return a.VideoId != nil && *a.VideoId != *b.VideoId
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
