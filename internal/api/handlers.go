package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/performer"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/search"
	"github.com/npezzotti/go-reveal/internal/server"
	"github.com/npezzotti/go-reveal/internal/types"
)

const searchMaxResults = 5

type NoteRequest struct {
	Text string `json:"text"`
}

type CreatedPerformer struct {
	Performer types.Performer `json:"performer"`
	Room      types.RoomState `json:"room"`
}

func (s *RevealApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

// roomError maps room service errors onto responses.
func roomError(err error) *ApiError {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewNotFoundError()
	case errors.Is(err, room.ErrInvalidTransition):
		e := NewBadRequestError()
		e.Message = err.Error()
		return e
	case errors.Is(err, room.ErrIllegalTransition):
		return NewUnprocessableError(err.Error())
	case errors.Is(err, room.ErrVersionConflict):
		return NewConflictError()
	default:
		return NewInternalServerError(err)
	}
}

func (s *RevealApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		log := logging.Ctx(r.Context(), s.log)
		log.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *RevealApp) getRoom(w http.ResponseWriter, r *http.Request) {
	state, err := s.rooms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

// visitRoom is a spectator landing on a room path. Every visit starts a
// fresh performance, so the room is reset to idle.
func (s *RevealApp) visitRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")
	if !performer.ValidSlug(roomId) {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	state, err := s.rooms.Visit(r.Context(), roomId)
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

func (s *RevealApp) transitionRoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.PathValue("id")
	if !sess.CanControl(roomId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var t room.Transition
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	state, err := s.rooms.Transition(r.Context(), roomId, t)
	if err != nil {
		errResp := roomError(err)
		if errResp.StatusCode == http.StatusInternalServerError {
			log := logging.Ctx(r.Context(), s.log)
			log.Error().Err(err).Str(logging.FieldRoomID, roomId).Msg("transition failed")
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, state)
}

// submitNote runs the note flow on the caller's own room. It always
// answers 200; failures show up as an unrevealed result.
func (s *RevealApp) submitNote(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, s.notes.Submit(r.Context(), sess.RoomId, req.Text))
}

func (s *RevealApp) searchVideos(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	videos, err := s.searcher.Search(r.Context(), query, searchMaxResults)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, search.ErrNoAPIKey) {
			errResp = NewServiceUnavailableError(err)
		} else {
			log := logging.Ctx(r.Context(), s.log)
			log.Error().Err(err).Str("query", query).Msg("video search failed")
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, videos)
}

func (s *RevealApp) listPerformers(w http.ResponseWriter, r *http.Request) {
	performers, err := s.performers.List(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, performers)
}

func (s *RevealApp) createPerformer(w http.ResponseWriter, r *http.Request) {
	var req performer.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	p, state, err := s.performers.Create(r.Context(), req)
	if err != nil {
		var errResp *ApiError
		var verr *performer.ValidationError
		if errors.As(err, &verr) {
			errResp = NewValidationError(verr.Fields)
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, CreatedPerformer{Performer: p, Room: state})
}

func (s *RevealApp) deletePerformer(w http.ResponseWriter, r *http.Request) {
	_, err := s.performers.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, sql.ErrNoRows):
			errResp = NewNotFoundError()
		case errors.Is(err, performer.ErrProtectedPerformer):
			errResp = NewForbiddenError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// serveWs attaches a socket to a room. Spectators connect without a
// cookie; a valid session additionally allows transition messages.
func (s *RevealApp) serveWs(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context(), s.log)
	roomId := r.PathValue("id")

	var session *types.Session
	if sess, err := s.sessionFromRequest(r); err == nil {
		session = &sess
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(conn, s.hub, s.rooms, roomId, session, log)
	if err := client.Attach(r.Context()); err != nil {
		log.Error().Err(err).Msg("failed to attach client")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "room unavailable"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
