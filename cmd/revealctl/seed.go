package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/npezzotti/go-reveal/internal/auth"
	"github.com/npezzotti/go-reveal/internal/config"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/performer"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

type noopDeletes struct{}

func (noopDeletes) PublishDeleted(string) error { return nil }

// openStore loads the server configuration and opens its repository.
// Postgres schemas are migrated so a fresh database can be seeded.
func openStore(ctx context.Context, configFile, dsn string) (*config.Config, database.RevealRepository, error) {
	overrides := map[string]any{}
	if dsn != "" {
		overrides["database.dsn"] = dsn
	}

	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	if cfg.DatabaseDriver == "memory" {
		return nil, nil, errors.New("the memory driver keeps no data between processes, configure postgres")
	}

	repo, err := database.NewPgRevealRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}

	return cfg, repo, nil
}

func newPerformerService(cfg *config.Config, repo database.RevealRepository, logger zerolog.Logger) *performer.Service {
	return performer.NewService(repo, auth.NewBcryptHasher(cfg.BcryptCost), noopDeletes{}, logger, performer.Options{
		AdminRoomId:    cfg.AdminRoomId,
		DefaultStartAt: cfg.DefaultStartAt,
	})
}

func runSeed(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to the server config file")
	dsn := fs.String("dsn", "", "database connection string")
	name := fs.String("name", "", "admin display name")
	username := fs.String("username", "", "admin email address")
	password := fs.String("password", os.Getenv("REVEAL_ADMIN_PASSWORD"), "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, repo, err := openStore(ctx, *configFile, *dsn)
	if err != nil {
		return err
	}
	defer repo.Close()

	if *username == "" {
		*username = cfg.AdminUsername
	}

	p, state, err := newPerformerService(cfg, repo, logger).Seed(ctx, performer.SeedRequest{
		Name:     *name,
		Username: *username,
		Password: *password,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "seeded %s <%s> in room %s (%s)\n", p.Name, p.Username, state.Id, state.Status)
	return nil
}

func runPerformers(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("performers", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to the server config file")
	dsn := fs.String("dsn", "", "database connection string")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, repo, err := openStore(ctx, *configFile, *dsn)
	if err != nil {
		return err
	}
	defer repo.Close()

	performers, err := newPerformerService(cfg, repo, logger).List(ctx)
	if err != nil {
		return err
	}

	return printPerformers(stdout, performers)
}

func printPerformers(w io.Writer, performers []types.Performer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSERNAME\tROOM\tROLE\tLAST LOGIN")
	for _, p := range performers {
		lastLogin := "never"
		if p.LastLogin != nil {
			lastLogin = p.LastLogin.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Id, p.Name, p.Username, p.Slug, p.Role, lastLogin)
	}
	return tw.Flush()
}
