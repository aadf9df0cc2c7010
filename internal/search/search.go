package search

import (
	"context"
	"errors"

	"github.com/npezzotti/go-reveal/internal/types"
)

var ErrNoAPIKey = errors.New("search: no api key configured")

// Searcher looks up videos matching a free text query. It returns at most
// max results, possibly none.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]types.Video, error)
}

// Filter narrows results to videos that can actually play inside the
// reveal player.
type Filter struct {
	Embeddable bool
	Duration   string
}

// NoteFilter is used by the note flow, where a video that refuses to embed
// or ends before the start offset would spoil the reveal.
var NoteFilter = Filter{Embeddable: true, Duration: "medium"}

func (f Filter) key() string {
	if !f.Embeddable && f.Duration == "" {
		return "any"
	}
	k := f.Duration
	if k == "" {
		k = "anylen"
	}
	if f.Embeddable {
		k += "+embed"
	}
	return k
}
