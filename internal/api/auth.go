package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-reveal/internal/auth"
	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/types"
)

const (
	defaultJwtExpiration = time.Hour * 24
	tokenCookieKey       = "token"
)

const (
	performerIdClaim = "performer_id"
	nameClaim        = "name"
	usernameClaim    = "username"
	roleClaim        = "role"
	roomIdClaim      = "room_id"
	expClaim         = "exp"
)

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s types.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFrom(ctx context.Context) (types.Session, bool) {
	s, ok := ctx.Value(sessionKey).(types.Session)
	return s, ok
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *RevealApp) createJwtForSession(sess types.Session, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		performerIdClaim: sess.PerformerId,
		nameClaim:        sess.Name,
		usernameClaim:    sess.Username,
		roleClaim:        string(sess.Role),
		roomIdClaim:      sess.RoomId,
		expClaim:         time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *RevealApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func (s *RevealApp) extractSessionFromToken(tokenString string) (types.Session, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return types.Session{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Session{}, fmt.Errorf("invalid token claims")
	}

	role, _ := claims[roleClaim].(string)
	roomId, _ := claims[roomIdClaim].(string)
	if role == "" || roomId == "" {
		return types.Session{}, fmt.Errorf("missing role or room claim")
	}

	sess := types.Session{
		Role:   types.Role(role),
		RoomId: roomId,
	}
	sess.PerformerId, _ = claims[performerIdClaim].(string)
	sess.Name, _ = claims[nameClaim].(string)
	sess.Username, _ = claims[usernameClaim].(string)

	return sess, nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// expiredCookie instructs the browser to drop the session cookie.
func expiredCookie() *http.Cookie {
	return createJwtCookie("", time.Duration(time.Unix(0, 0).Unix()))
}

func (s *RevealApp) login(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context(), s.log)

	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Username == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sess, err := s.resolver.Resolve(r.Context(), lr.Username, lr.Password)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, auth.ErrAuthFailure) {
			errResp = NewUnauthorizedError("invalid username or password")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(sess, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	log.Info().Str("role", string(sess.Role)).Str(logging.FieldRoomID, sess.RoomId).Msg("login succeeded")
	s.writeJson(w, http.StatusOK, sess)
}

// session returns the caller's session. A performer deleted since the
// token was issued is logged out.
func (s *RevealApp) session(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if sess.PerformerId != "" {
		if _, err := s.db.GetPerformerById(r.Context(), sess.PerformerId); err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				http.SetCookie(w, expiredCookie())
				errResp = NewUnauthorizedError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	s.writeJson(w, http.StatusOK, sess)
}

func (s *RevealApp) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, expiredCookie())
	w.WriteHeader(http.StatusNoContent)
}
