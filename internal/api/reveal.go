package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-reveal/internal/config"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/notes"
	"github.com/npezzotti/go-reveal/internal/performer"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/search"
	"github.com/npezzotti/go-reveal/internal/server"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

type RoomService interface {
	server.RoomController
	Visit(ctx context.Context, roomId string) (types.RoomState, error)
}

type SessionResolver interface {
	Resolve(ctx context.Context, username, password string) (types.Session, error)
}

type PerformerService interface {
	Create(ctx context.Context, req performer.CreateRequest) (types.Performer, types.RoomState, error)
	List(ctx context.Context) ([]types.Performer, error)
	Delete(ctx context.Context, id string) (types.Performer, error)
}

type NoteSubmitter interface {
	Submit(ctx context.Context, roomId, text string) notes.Result
}

// Services are the collaborators behind the HTTP surface.
type Services struct {
	Hub        *server.Hub
	Rooms      RoomService
	Resolver   SessionResolver
	Performers PerformerService
	Notes      NoteSubmitter
	Searcher   search.Searcher
}

var (
	_ RoomService      = (*room.Service)(nil)
	_ PerformerService = (*performer.Service)(nil)
	_ NoteSubmitter    = (*notes.Flow)(nil)
)

type RevealApp struct {
	log            zerolog.Logger
	db             database.RevealRepository
	mux            *http.Server
	hub            *server.Hub
	rooms          RoomService
	resolver       SessionResolver
	performers     PerformerService
	notes          NoteSubmitter
	searcher       search.Searcher
	signingKey     []byte
	allowedOrigins []string
}

func NewRevealApp(mux *http.ServeMux, logger zerolog.Logger, db database.RevealRepository, svc Services, cfg *config.Config) *RevealApp {
	s := &RevealApp{
		log:            logger,
		db:             db,
		hub:            svc.Hub,
		rooms:          svc.Rooms,
		resolver:       svc.Resolver,
		performers:     svc.Performers,
		notes:          svc.Notes,
		searcher:       svc.Searcher,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/rooms/{id}", s.getRoom)
	mux.HandleFunc("POST /api/rooms/{id}/visit", s.visitRoom)
	mux.HandleFunc("POST /api/rooms/{id}/transitions", s.authMiddleware(s.transitionRoom))
	mux.HandleFunc("POST /api/notes", s.authMiddleware(s.submitNote))
	mux.HandleFunc("GET /api/search", s.authMiddleware(s.searchVideos))
	mux.HandleFunc("GET /api/admin/performers", s.authMiddleware(s.adminMiddleware(s.listPerformers)))
	mux.HandleFunc("POST /api/admin/performers", s.authMiddleware(s.adminMiddleware(s.createPerformer)))
	mux.HandleFunc("DELETE /api/admin/performers/{id}", s.authMiddleware(s.adminMiddleware(s.deletePerformer)))
	mux.HandleFunc("GET /ws/rooms/{id}", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)
	h = logging.HTTPMiddleware(logger)(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *RevealApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *RevealApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *RevealApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
