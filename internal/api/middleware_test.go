package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBareApp(log zerolog.Logger) *RevealApp {
	return &RevealApp{log: log, signingKey: testSigningKey}
}

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := newBareApp(zerolog.New(buf))

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := newBareApp(zerolog.Nop())

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_authMiddleware(t *testing.T) {
	app := newBareApp(zerolog.Nop())

	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		if !ok {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sess.RoomId))
	})

	validToken, err := app.createJwtForSession(types.Session{
		PerformerId: "p1",
		Username:    "alice@example.com",
		Role:        types.RolePerformer,
		RoomId:      "alice",
	}, defaultJwtExpiration)
	require.NoError(t, err)

	expiredToken, err := app.createJwtForSession(types.Session{Role: types.RolePerformer, RoomId: "alice"}, -time.Minute)
	require.NoError(t, err)

	otherKeyToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roleClaim:   string(types.RoleAdmin),
		roomIdClaim: "admin-room",
		expClaim:    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("another-key"))
	require.NoError(t, err)

	noRoomToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roleClaim: string(types.RoleAdmin),
		expClaim:  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSigningKey)
	require.NoError(t, err)

	tcases := []struct {
		name         string
		cookie       *http.Cookie
		expectedCode int
	}{
		{
			name:         "valid token",
			cookie:       createJwtCookie(validToken, defaultJwtExpiration),
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing token",
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "invalid token",
			cookie:       &http.Cookie{Name: tokenCookieKey, Value: "invalid-token"},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "expired token",
			cookie:       &http.Cookie{Name: tokenCookieKey, Value: expiredToken},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "signed with another key",
			cookie:       &http.Cookie{Name: tokenCookieKey, Value: otherKeyToken},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "missing room claim",
			cookie:       &http.Cookie{Name: tokenCookieKey, Value: noRoomToken},
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}

			app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				assert.Equal(t, "alice", rr.Body.String())
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			}
		})
	}
}

func Test_adminMiddleware(t *testing.T) {
	app := newBareApp(zerolog.Nop())
	okHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	tcases := []struct {
		name         string
		session      *types.Session
		expectedCode int
	}{
		{"admin", &types.Session{Role: types.RoleAdmin, RoomId: "admin-room"}, http.StatusOK},
		{"performer", &types.Session{Role: types.RolePerformer, RoomId: "alice"}, http.StatusForbidden},
		{"no session", nil, http.StatusForbidden},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.session != nil {
				req = req.WithContext(WithSession(req.Context(), *tc.session))
			}

			app.adminMiddleware(okHandler).ServeHTTP(rr, req)
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}
