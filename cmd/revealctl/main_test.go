package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/npezzotti/go-reveal/internal/testutil"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_dispatch(t *testing.T) {
	tcases := []struct {
		name     string
		args     []string
		expected int
		stderr   string
	}{
		{"no command", nil, 2, "usage: revealctl"},
		{"unknown command", []string{"bogus"}, 2, `unknown command "bogus"`},
		{"bad flag", []string{"watch", "-nope"}, 1, ""},
		{"watch without room", []string{"watch"}, 1, ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
			code := dispatch(context.Background(), tc.args, stdout, stderr, testutil.TestLogger(t))
			assert.Equal(t, tc.expected, code)
			assert.Contains(t, stderr.String(), tc.stderr)
		})
	}
}

func Test_printPerformers(t *testing.T) {
	login := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := &bytes.Buffer{}

	err := printPerformers(out, []types.Performer{
		{Id: "p1", Name: "Alice", Username: "alice@example.com", Slug: "alice", Role: types.RolePerformer, LastLogin: &login},
		{Id: "p2", Name: "Bob", Username: "bob@example.com", Slug: "bob", Role: types.RolePerformer},
	})
	assert.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	assert.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "LAST LOGIN")
	assert.Contains(t, string(lines[1]), "2024-05-01T12:00:00Z")
	assert.Contains(t, string(lines[2]), "never")
}
