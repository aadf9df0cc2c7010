package notes

import (
	"context"
	"strings"

	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/search"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

const DefaultRevealStartAt = 15

// RoomDriver is the part of the room service the note flow drives.
type RoomDriver interface {
	SetVideo(ctx context.Context, roomId, videoId string, startAt int, expectedVersion int) (types.RoomState, error)
	Reveal(ctx context.Context, roomId string, expectedVersion int) (types.RoomState, error)
}

type Result struct {
	Revealed bool    `json:"revealed"`
	VideoId  *string `json:"video_id,omitempty"`
}

type Flow struct {
	normalizer    search.Normalizer
	searcher      search.Searcher
	rooms         RoomDriver
	revealStartAt int
	log           zerolog.Logger
}

func NewFlow(normalizer search.Normalizer, searcher search.Searcher, rooms RoomDriver, revealStartAt int, logger zerolog.Logger) *Flow {
	if revealStartAt < 0 {
		revealStartAt = DefaultRevealStartAt
	}
	return &Flow{
		normalizer:    normalizer,
		searcher:      searcher,
		rooms:         rooms,
		revealStartAt: revealStartAt,
		log:           logger,
	}
}

// Submit turns a performer's note into a reveal on roomId. Failures are
// logged and reported as an unrevealed result, never as an error, so the
// performer's screen carries on as a plain notes app.
func (f *Flow) Submit(ctx context.Context, roomId, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	l := logging.Ctx(ctx, f.log).With().Str(logging.FieldRoomID, roomId).Logger()

	query := f.normalizer.Normalize(ctx, text)
	videos, err := f.searcher.Search(ctx, query, 1)
	if err != nil {
		l.Error().Err(err).Str("query", query).Msg("note search failed")
		return Result{}
	}
	if len(videos) == 0 {
		l.Warn().Str("query", query).Msg("note search returned no videos")
		return Result{}
	}

	v := videos[0]
	armed, err := f.rooms.SetVideo(ctx, roomId, v.VideoId, f.revealStartAt, 0)
	if err != nil {
		l.Error().Err(err).Str("video_id", v.VideoId).Msg("failed to set note video")
		return Result{}
	}

	if _, err := f.rooms.Reveal(ctx, roomId, armed.Version); err != nil {
		l.Error().Err(err).Str("video_id", v.VideoId).Msg("failed to reveal note video")
		return Result{}
	}

	l.Info().Str("video_id", v.VideoId).Str("query", query).Msg("note revealed")
	return Result{Revealed: true, VideoId: &v.VideoId}
}
