package search

import (
	"context"
	"regexp"
	"strings"
)

// Normalizer turns noisy note text into a search query. Implementations
// may call out to a text model; RuleNormalizer needs nothing external.
type Normalizer interface {
	Normalize(ctx context.Context, text string) string
}

var (
	// An opening fence with a language tag on its own line.
	fenceOpen = regexp.MustCompile("```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n")
	quoteRun  = regexp.MustCompile("[`\"“”]+")
)

// RuleNormalizer strips code fences, backticks and quotes and collapses
// whitespace. If nothing is left the raw input is returned trimmed.
type RuleNormalizer struct{}

func (RuleNormalizer) Normalize(_ context.Context, text string) string {
	out := fenceOpen.ReplaceAllString(text, " ")
	out = quoteRun.ReplaceAllString(out, " ")
	out = strings.Join(strings.Fields(out), " ")
	if out == "" {
		return strings.TrimSpace(text)
	}
	return out
}
