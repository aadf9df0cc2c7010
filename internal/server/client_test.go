package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/npezzotti/go-reveal/internal/testutil"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_transitionError(t *testing.T) {
	tcases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad", room.ErrInvalidTransition), http.StatusBadRequest},
		{fmt.Errorf("%w: reveal from idle", room.ErrIllegalTransition), http.StatusUnprocessableEntity},
		{room.ErrVersionConflict, http.StatusConflict},
		{sql.ErrNoRows, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			msg := transitionError(5, tc.err)
			assert.Equal(t, 5, msg.Id)
			assert.Equal(t, tc.code, msg.Response.ResponseCode)
		})
	}
}

type socketFixture struct {
	hub   *Hub
	repo  *database.MemoryRevealRepository
	rooms *room.Service
	srv   *httptest.Server
}

// newSocketFixture serves /{room} as a room socket. The session query
// parameter stands in for cookie auth: "performer:<room>" or "admin".
func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()

	hub := runTestHub(t, stats.Noop{}, HubOptions{})
	repo := database.NewMemoryRevealRepository()
	rooms := room.NewService(repo, hub, stats.Noop{}, zerolog.Nop(), room.Options{
		DefaultStartAt: room.DefaultStartAt,
		AdminRoomId:    "admin-room",
	})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomId := strings.TrimPrefix(r.URL.Path, "/")

		var session *types.Session
		switch s := r.URL.Query().Get("session"); {
		case s == "admin":
			session = &types.Session{Role: types.RoleAdmin, RoomId: "admin-room"}
		case strings.HasPrefix(s, "performer:"):
			session = &types.Session{Role: types.RolePerformer, RoomId: strings.TrimPrefix(s, "performer:")}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := NewClient(conn, hub, rooms, roomId, session, zerolog.Nop())
		if err := c.Attach(r.Context()); err != nil {
			conn.Close()
			return
		}
		go c.Write()
		go c.Read()
	}))
	t.Cleanup(srv.Close)

	return &socketFixture{hub: hub, repo: repo, rooms: rooms, srv: srv}
}

func (f *socketFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *socketFixture) createPerformer(t *testing.T, slug string) {
	t.Helper()
	_, _, err := f.repo.CreatePerformer(context.Background(), database.CreatePerformerParams{
		Id:       "id-" + slug,
		Name:     slug,
		Username: slug + "@example.com",
		Slug:     slug,
		Role:     types.RolePerformer,
		StartAt:  room.DefaultStartAt,
	})
	require.NoError(t, err)
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readSnapshot(t *testing.T, conn *websocket.Conn) RoomSnapshot {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Room != nil {
			return *msg.Room
		}
	}
}

func readResponse(t *testing.T, conn *websocket.Conn, id int) Response {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Response != nil && msg.Id == id {
			return *msg.Response
		}
	}
}

func TestClient_SnapshotThenUpdates(t *testing.T) {
	ctx := context.Background()
	f := newSocketFixture(t)
	f.createPerformer(t, "alice")

	conn := f.dial(t, "/alice")
	snap := readSnapshot(t, conn)
	require.True(t, snap.Exists)
	assert.Equal(t, types.RoomStatusIdle, snap.State.Status)

	_, err := f.rooms.Arm(ctx, "alice", nil, nil, 0)
	require.NoError(t, err)
	_, err = f.rooms.SetVideo(ctx, "alice", "V1", 15, 0)
	require.NoError(t, err)
	_, err = f.rooms.Reveal(ctx, "alice", 0)
	require.NoError(t, err)
	_, err = f.rooms.Reveal(ctx, "alice", 0)
	require.NoError(t, err)

	armed := readSnapshot(t, conn)
	assert.Equal(t, types.RoomStatusArmed, armed.State.Status)
	withVideo := readSnapshot(t, conn)
	assert.Equal(t, "V1", *withVideo.State.VideoId)
	revealed := readSnapshot(t, conn)
	assert.Equal(t, types.RoomStatusRevealed, revealed.State.Status)
	assert.Equal(t, 15, revealed.State.StartAt)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var extra ServerMessage
	assert.Error(t, conn.ReadJSON(&extra), "expected no duplicate reveal snapshot")
}

func TestClient_MissingAndDeletedRoom(t *testing.T) {
	ctx := context.Background()
	f := newSocketFixture(t)

	missing := f.dial(t, "/ghost")
	assert.False(t, readSnapshot(t, missing).Exists, "expected missing room to be reported, not fatal")

	f.createPerformer(t, "alice")
	conn := f.dial(t, "/alice")
	require.True(t, readSnapshot(t, conn).Exists)

	_, err := f.repo.DeletePerformer(ctx, "id-alice")
	require.NoError(t, err)
	require.NoError(t, f.hub.PublishDeleted("alice"))

	assert.False(t, readSnapshot(t, conn).Exists, "expected deletion to be pushed")
}

func TestClient_Transitions(t *testing.T) {
	f := newSocketFixture(t)
	f.createPerformer(t, "alice")

	tcases := []struct {
		name    string
		path    string
		id      int
		message string
		code    int
	}{
		{
			name:    "spectator cannot control",
			path:    "/alice",
			id:      1,
			message: `{"id":1,"transition":{"op":"arm"}}`,
			code:    http.StatusForbidden,
		},
		{
			name:    "other performer cannot control",
			path:    "/alice?session=performer:bob",
			id:      2,
			message: `{"id":2,"transition":{"op":"arm"}}`,
			code:    http.StatusForbidden,
		},
		{
			name:    "illegal reveal from idle",
			path:    "/alice?session=performer:alice",
			id:      3,
			message: `{"id":3,"transition":{"op":"reveal"}}`,
			code:    http.StatusUnprocessableEntity,
		},
		{
			name:    "invalid op",
			path:    "/alice?session=performer:alice",
			id:      4,
			message: `{"id":4,"transition":{"op":"explode"}}`,
			code:    http.StatusBadRequest,
		},
		{
			name:    "stale version",
			path:    "/alice?session=performer:alice",
			id:      5,
			message: `{"id":5,"transition":{"op":"arm","expected_version":42}}`,
			code:    http.StatusConflict,
		},
		{
			name:    "owner arms",
			path:    "/alice?session=performer:alice",
			id:      6,
			message: `{"id":6,"transition":{"op":"arm"}}`,
			code:    http.StatusOK,
		},
		{
			name:    "admin resets",
			path:    "/alice?session=admin",
			id:      7,
			message: `{"id":7,"transition":{"op":"reset"}}`,
			code:    http.StatusOK,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			conn := f.dial(t, tc.path)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.message)))

			res := readResponse(t, conn, tc.id)
			assert.Equal(t, tc.code, res.ResponseCode, "unexpected response: %+v", res)
		})
	}
}

func TestClient_InvalidMessage(t *testing.T) {
	f := newSocketFixture(t)
	f.createPerformer(t, "alice")

	conn := f.dial(t, "/alice")
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.Equal(t, http.StatusBadRequest, msg.Response.ResponseCode)
}

func TestClient_CloseReleasesSubscription(t *testing.T) {
	su := newCountingStats()
	hub := runTestHub(t, su, HubOptions{})
	repo := database.NewMemoryRevealRepository()
	rooms := room.NewService(repo, hub, stats.Noop{}, zerolog.Nop(), room.Options{DefaultStartAt: 12})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(conn, hub, rooms, "alice", nil, zerolog.Nop())
		if err := c.Attach(r.Context()); err != nil {
			conn.Close()
			return
		}
		go c.Write()
		go c.Read()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	readSnapshot(t, conn)
	assert.Equal(t, 1, su.get(stats.NumSubscribers))

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool {
		return su.get(stats.NumSubscribers) == 0
	}, time.Second, 10*time.Millisecond, "expected subscription to be released")
}

// racingRooms pushes ev through the hub while Get is in flight and only
// returns once the event sits in the client's subscription buffer.
type racingRooms struct {
	hub    *Hub
	client *Client
	ev     Event
	state  *types.RoomState
}

func (r *racingRooms) Get(ctx context.Context, roomId string) (types.RoomState, error) {
	if err := r.hub.Deliver(r.ev); err != nil {
		return types.RoomState{}, err
	}

	deadline := time.Now().Add(time.Second)
	for len(r.client.sub.C) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if r.state == nil {
		return types.RoomState{}, sql.ErrNoRows
	}
	return *r.state, nil
}

func (r *racingRooms) Transition(ctx context.Context, roomId string, t room.Transition) (types.RoomState, error) {
	return types.RoomState{}, errors.New("not supported")
}

func TestClient_AttachSnapshotPrecedesEvents(t *testing.T) {
	armed := roomState("alice", types.RoomStatusArmed, 2)
	created := roomState("alice", types.RoomStatusIdle, 3)

	tcases := []struct {
		name       string
		ev         Event
		state      *types.RoomState
		first      bool
		lastExists bool
	}{
		{
			name:       "deleted while reading",
			ev:         Event{RoomId: "alice", Deleted: true},
			state:      &armed,
			first:      true,
			lastExists: false,
		},
		{
			name:       "created while reading",
			ev:         Event{RoomId: "alice", State: &created},
			state:      nil,
			first:      false,
			lastExists: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			hub := runTestHub(t, stats.Noop{}, HubOptions{})

			upgrader := websocket.Upgrader{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				rooms := &racingRooms{hub: hub, ev: tc.ev, state: tc.state}
				c := NewClient(conn, hub, rooms, "alice", nil, zerolog.Nop())
				rooms.client = c
				if err := c.Attach(r.Context()); err != nil {
					conn.Close()
					return
				}
				go c.Write()
				go c.Read()
			}))
			defer srv.Close()

			for i := 0; i < 20; i++ {
				conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
				require.NoError(t, err)

				first := readSnapshot(t, conn)
				last := readSnapshot(t, conn)
				conn.Close()

				assert.Equal(t, tc.first, first.Exists, "expected attach snapshot first")
				assert.Equal(t, tc.lastExists, last.Exists, "expected pushed event to win")
				if tc.lastExists {
					assert.Equal(t, 3, last.State.Version)
				}
			}
		})
	}
}
