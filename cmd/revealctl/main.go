// Command revealctl holds the operator maintenance tasks and a headless
// spectator for checking a room from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/rs/zerolog"
)

const usage = `usage: revealctl <command> [flags]

commands:
  seed        create or replace the admin performer and reset its room
  performers  list performer accounts
  watch       follow a room as a spectator and print what it would show
`

type command func(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error

var commands = map[string]command{
	"seed":       runSeed,
	"performers": runPerformers,
	"watch":      runWatch,
}

func main() {
	logger := logging.New(logging.Config{
		Level:       os.Getenv("REVEAL_LOG_LEVEL"),
		Pretty:      true,
		ServiceName: "revealctl",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(dispatch(ctx, os.Args[1:], os.Stdout, os.Stderr, logger))
}

func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer, logger zerolog.Logger) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err := cmd(ctx, args[1:], stdout, logger.With().Str("command", args[0]).Logger()); err != nil {
		logger.Error().Err(err).Msg(args[0] + " failed")
		return 1
	}

	return 0
}
