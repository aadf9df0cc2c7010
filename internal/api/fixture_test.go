package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-reveal/internal/auth"
	"github.com/npezzotti/go-reveal/internal/config"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/notes"
	"github.com/npezzotti/go-reveal/internal/performer"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/search"
	"github.com/npezzotti/go-reveal/internal/server"
	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminUsername = "admin@example.com"
	testAdminPassword = "admin-pass"
	testAdminRoom     = "admin-room"
)

var testSigningKey = []byte("test-signing-key")

type fakeSearcher struct {
	videos []types.Video
	err    error
}

func (s *fakeSearcher) Search(ctx context.Context, query string, max int) ([]types.Video, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.videos) > max {
		return s.videos[:max], nil
	}
	return s.videos, nil
}

type testApp struct {
	app      *RevealApp
	repo     *database.MemoryRevealRepository
	rooms    *room.Service
	searcher *fakeSearcher
	srv      *httptest.Server
}

// newTestApp wires the real services over the memory repository and
// serves the full middleware chain.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := database.NewMemoryRevealRepository()

	hub := server.NewHub(zerolog.Nop(), stats.Noop{}, server.HubOptions{})
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hub.Shutdown(ctx)
	})

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	adminHash, err := hasher.Hash(testAdminPassword)
	require.NoError(t, err)

	resolver := auth.NewResolver(repo, hasher, auth.AdminCredentials{
		Username:     testAdminUsername,
		PasswordHash: adminHash,
		RoomId:       testAdminRoom,
	}, zerolog.Nop())
	t.Cleanup(resolver.Wait)

	rooms := room.NewService(repo, hub, stats.Noop{}, zerolog.Nop(), room.Options{
		DefaultStartAt: room.DefaultStartAt,
		AdminRoomId:    testAdminRoom,
	})
	performers := performer.NewService(repo, hasher, hub, zerolog.Nop(), performer.Options{
		AdminRoomId:    testAdminRoom,
		DefaultStartAt: room.DefaultStartAt,
	})
	searcher := &fakeSearcher{}
	flow := notes.NewFlow(search.RuleNormalizer{}, searcher, rooms, notes.DefaultRevealStartAt, zerolog.Nop())

	app := NewRevealApp(http.NewServeMux(), zerolog.Nop(), repo, Services{
		Hub:        hub,
		Rooms:      rooms,
		Resolver:   resolver,
		Performers: performers,
		Notes:      flow,
		Searcher:   searcher,
	}, &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: testSigningKey,
	})

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	return &testApp{app: app, repo: repo, rooms: rooms, searcher: searcher, srv: srv}
}

// client returns an http client with its own cookie jar.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func (a *testApp) do(t *testing.T, c *http.Client, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(t, err)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (a *testApp) login(t *testing.T, username, password string) *http.Client {
	t.Helper()
	c := a.client(t)
	code, body := a.do(t, c, http.MethodPost, "/api/auth/login", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, code, string(body))
	return c
}

func (a *testApp) adminClient(t *testing.T) *http.Client {
	return a.login(t, testAdminUsername, testAdminPassword)
}

func (a *testApp) createPerformer(t *testing.T, admin *http.Client, slug string) types.Performer {
	t.Helper()
	code, body := a.do(t, admin, http.MethodPost, "/api/admin/performers", performer.CreateRequest{
		Name:     strings.ToUpper(slug[:1]) + slug[1:],
		Username: slug + "@example.com",
		Password: slug + "-pass",
		Slug:     slug,
	})
	require.Equal(t, http.StatusCreated, code, string(body))

	var created CreatedPerformer
	require.NoError(t, json.Unmarshal(body, &created))
	return created.Performer
}

func (a *testApp) dial(t *testing.T, path string, c *http.Client) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(a.srv.URL, "http") + path

	dialer := *websocket.DefaultDialer
	if c != nil {
		dialer.Jar = c.Jar
	}
	conn, _, err := dialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func readSnapshot(t *testing.T, conn *websocket.Conn) server.RoomSnapshot {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg server.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Room != nil {
			return *msg.Room
		}
	}
}
