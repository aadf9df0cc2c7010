package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-reveal/internal/room"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingInterval      = (pongWait * 9) / 10
	maxMessageSize    = 1024
	transitionTimeout = 5 * time.Second
)

// RoomController is the part of the room service a socket needs.
type RoomController interface {
	Get(ctx context.Context, roomId string) (types.RoomState, error)
	Transition(ctx context.Context, roomId string, t room.Transition) (types.RoomState, error)
}

// Client is one websocket attached to one room. Spectator sockets carry no
// session and are receive-only.
type Client struct {
	conn     *websocket.Conn
	hub      *Hub
	rooms    RoomController
	log      zerolog.Logger
	roomId   string
	session  *types.Session
	send     chan *ServerMessage
	sub      *Subscription
	stop     chan struct{}
	stopOnce sync.Once

	// snapshot is the attach snapshot. Write sends it before any event
	// from sub so a stale read never lands after a newer push.
	snapshot *ServerMessage
	// lastVersion is owned by Write.
	lastVersion int
}

func NewClient(conn *websocket.Conn, hub *Hub, rooms RoomController, roomId string, session *types.Session, l zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		rooms:   rooms,
		log:     l.With().Str("room_id", roomId).Logger(),
		roomId:  roomId,
		session: session,
		send:    make(chan *ServerMessage, 256),
		stop:    make(chan struct{}),
	}
}

// Attach subscribes to the room and reads the current snapshot. Changes
// committed after Attach returns are never missed. Attach must return
// before Write is started.
func (c *Client) Attach(ctx context.Context) error {
	sub, err := c.hub.Subscribe(ctx, c.roomId)
	if err != nil {
		return err
	}
	c.sub = sub

	state, err := c.rooms.Get(ctx, c.roomId)
	switch {
	case err == nil:
		c.snapshot = SnapshotMessage(&state)
	case errors.Is(err, sql.ErrNoRows):
		c.snapshot = SnapshotMessage(nil)
	default:
		sub.Close()
		return err
	}

	return nil
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	if c.snapshot != nil {
		if !c.writeServerMessage(c.snapshot) {
			return
		}
		c.snapshot = nil
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if !c.writeServerMessage(msg) {
				return
			}
		case ev, ok := <-c.sub.C:
			if !ok {
				c.sendMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !c.writeServerMessage(eventMessage(ev)) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func eventMessage(ev Event) *ServerMessage {
	if ev.Deleted {
		return SnapshotMessage(nil)
	}
	return SnapshotMessage(ev.State)
}

// writeServerMessage drops room snapshots that are not newer than the
// last one written, so reordered or repeated events never reach the
// socket twice.
func (c *Client) writeServerMessage(msg *ServerMessage) bool {
	if msg.Room != nil {
		if msg.Room.State != nil {
			if msg.Room.State.Version <= c.lastVersion {
				return true
			}
			c.lastVersion = msg.Room.State.Version
		} else {
			c.lastVersion = 0
		}
	}

	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to serialize message")
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}
		msg.Timestamp = Now()

		switch {
		case msg.Transition != nil:
			c.handleTransition(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) handleTransition(msg *ClientMessage) {
	if c.session == nil || !c.session.CanControl(c.roomId) {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), transitionTimeout)
	defer cancel()

	state, err := c.rooms.Transition(ctx, c.roomId, *msg.Transition)
	if err != nil {
		c.queueMessage(transitionError(msg.Id, err))
		if !errors.Is(err, room.ErrIllegalTransition) && !errors.Is(err, room.ErrVersionConflict) {
			c.log.Warn().Err(err).Str("op", string(msg.Transition.Op)).Msg("transition failed")
		}
		return
	}

	c.queueMessage(NoErrOK(msg.Id, state))
}

func transitionError(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, room.ErrInvalidTransition):
		return ErrInvalidMessage(id)
	case errors.Is(err, room.ErrIllegalTransition):
		return ErrUnprocessable(id, err.Error())
	case errors.Is(err, room.ErrVersionConflict):
		return ErrConflict(id)
	case errors.Is(err, sql.ErrNoRows):
		return ErrRoomNotFound(id)
	default:
		return ErrInternalError(id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	if c.sub != nil {
		c.sub.Close()
	}
	c.stopClient()
}
