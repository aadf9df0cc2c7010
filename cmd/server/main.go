package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-reveal/internal/api"
	"github.com/npezzotti/go-reveal/internal/auth"
	"github.com/npezzotti/go-reveal/internal/config"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/notes"
	"github.com/npezzotti/go-reveal/internal/performer"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/search"
	"github.com/npezzotti/go-reveal/internal/server"
	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// parseFlags returns the config file path and the flags the user set
// explicitly, keyed by their config key. Unset flags never override the
// file or environment.
func parseFlags(args []string) (string, map[string]any, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	var (
		configFile     string
		addr           string
		driver         string
		dsn            string
		signingKey     string
		logLevel       string
		allowedOrigins stringSliceFlag
	)
	fs.StringVar(&configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&addr, "addr", "localhost:8000", "server address")
	fs.StringVar(&driver, "driver", "postgres", "storage driver: postgres or memory")
	fs.StringVar(&dsn, "dsn", "", "database connection string")
	fs.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key")
	fs.StringVar(&logLevel, "log-level", "info", "log level")
	fs.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")

	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}

	keys := map[string]string{
		"addr":            "server.addr",
		"driver":          "database.driver",
		"dsn":             "database.dsn",
		"signing-key":     "auth.signing_key",
		"log-level":       "log.level",
		"allowed-origins": "server.allowed_origins",
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		key, ok := keys[f.Name]
		if !ok {
			return
		}
		if f.Name == "allowed-origins" {
			overrides[key] = []string(allowedOrigins)
			return
		}
		overrides[key] = f.Value.String()
	})

	return configFile, overrides, nil
}

func main() {
	configFile, overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Pretty:      cfg.LogPretty,
		ServiceName: "reveal",
	})

	if err := run(logger, cfg); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("shutdown complete")
}

func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (database.RevealRepository, error) {
	if cfg.DatabaseDriver == "memory" {
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return database.NewMemoryRevealRepository(), nil
	}

	repo, err := database.NewPgRevealRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	return repo, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// newSearchers builds the control panel searcher and the note flow
// searcher, each behind the Redis cache when one is configured.
func newSearchers(cfg *config.Config, rdb *redis.Client, st stats.StatsProvider, logger zerolog.Logger) (search.Searcher, search.Searcher) {
	panel := search.NewYouTubeClient(cfg.YouTubeAPIKey)
	note := search.NewYouTubeClient(cfg.YouTubeAPIKey, search.WithFilter(search.NoteFilter))
	if rdb == nil {
		return panel, note
	}

	cache := search.NewRedisCache(rdb, search.DefaultCachePrefix)
	return search.NewCachedSearcher(panel, cache, panel.Filter(), cfg.SearchCacheTTL, st, logger),
		search.NewCachedSearcher(note, cache, note.Filter(), cfg.SearchCacheTTL, st, logger)
}

func run(logger zerolog.Logger, cfg *config.Config) error {
	ctx := context.Background()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	var (
		rdb   *redis.Client
		relay server.Relay
	)
	if cfg.RedisAddr != "" {
		rdb, err = openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		instanceId := uuid.NewString()
		relay = server.NewRedisRelay(rdb, server.DefaultRelayChannel, instanceId, logger)
		logger.Info().Str("instance_id", instanceId).Msg("redis relay enabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	for _, m := range stats.DefaultMetrics {
		statsUpdater.RegisterMetric(m)
	}

	hub := server.NewHub(logger, statsUpdater, server.HubOptions{
		IdleTimeout: cfg.RoomIdleTimeout,
		Relay:       relay,
	})

	rooms := room.NewService(repo, hub, statsUpdater, logger, room.Options{
		DefaultStartAt: cfg.DefaultStartAt,
		AdminRoomId:    cfg.AdminRoomId,
	})
	if _, err := rooms.Ensure(ctx, cfg.AdminRoomId); err != nil {
		return fmt.Errorf("ensure admin room: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	resolver := auth.NewResolver(repo, hasher, auth.AdminCredentials{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		RoomId:       cfg.AdminRoomId,
	}, logger)

	performers := performer.NewService(repo, hasher, hub, logger, performer.Options{
		AdminRoomId:    cfg.AdminRoomId,
		DefaultStartAt: cfg.DefaultStartAt,
	})

	panelSearch, noteSearch := newSearchers(cfg, rdb, statsUpdater, logger)
	flow := notes.NewFlow(search.RuleNormalizer{}, noteSearch, rooms, cfg.RevealStartAt, logger)

	srv := api.NewRevealApp(mux, logger, repo, api.Services{
		Hub:        hub,
		Rooms:      rooms,
		Resolver:   resolver,
		Performers: performers,
		Notes:      flow,
		Searcher:   panelSearch,
	}, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx, hub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case <-gctx.Done():
		logger.Error().Msg("server component stopped")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down room hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("room hub shutdown")
	}

	cancelRun()
	resolver.Wait()

	return g.Wait()
}
