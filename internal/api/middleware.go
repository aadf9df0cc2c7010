package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/go-reveal/internal/logging"
	"github.com/npezzotti/go-reveal/internal/types"
)

func (s *RevealApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				log := logging.Ctx(r.Context(), s.log)
				log.Error().Err(panicError).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// sessionFromRequest reads and verifies the session cookie.
func (s *RevealApp) sessionFromRequest(r *http.Request) (types.Session, error) {
	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return types.Session{}, err
	}
	return s.extractSessionFromToken(tokenCookie.Value)
}

func (s *RevealApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessionFromRequest(r)
		if err != nil {
			log := logging.Ctx(r.Context(), s.log)
			log.Debug().Err(err).Msg("failed to extract session from token")
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithSession(r.Context(), sess)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware must run inside authMiddleware.
func (s *RevealApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		if !ok || sess.Role != types.RoleAdmin {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next(w, r)
	}
}
