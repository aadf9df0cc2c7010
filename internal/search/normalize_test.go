package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleNormalizer(t *testing.T) {
	tcases := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain text", "happy birthday", "happy birthday"},
		{"inline fence", "```happy birthday```", "happy birthday"},
		{"fenced block with language", "```text\nhappy birthday\n```", "happy birthday"},
		{"backticks and quotes", "`bohemian` \"rhapsody\"", "bohemian rhapsody"},
		{"collapses whitespace", "  never \n\n gonna\tgive   you up ", "never gonna give you up"},
		{"only fences falls back to raw", "```", "```"},
		{"empty", "", ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RuleNormalizer{}.Normalize(context.Background(), tc.in))
		})
	}
}
