package server

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultIdleRoomTimeout = 30 * time.Second
	relayPublishTimeout    = 2 * time.Second
)

var ErrHubStopped = errors.New("room hub is stopped")

// Event is one change on a room channel: either a committed state or the
// room's deletion.
type Event struct {
	RoomId  string           `json:"room_id"`
	State   *types.RoomState `json:"state,omitempty"`
	Deleted bool             `json:"deleted,omitempty"`
}

type stopReq struct {
	done chan struct{}
}

type HubOptions struct {
	IdleTimeout time.Duration
	// Relay mirrors local events to other instances. Optional.
	Relay Relay
}

// Hub is the room channel: it fans committed room states out to every
// subscriber of that room. Each room with subscribers is served by its own
// feed goroutine; the hub goroutine only routes.
type Hub struct {
	log         zerolog.Logger
	stats       stats.StatsProvider
	relay       Relay
	idleTimeout time.Duration

	// owned by Run
	feeds    map[string]*roomFeed
	numFeeds int

	subscribeChan chan *Subscription
	eventChan     chan Event
	unloadChan    chan *roomFeed
	stop          chan stopReq
	done          chan struct{}
}

func NewHub(logger zerolog.Logger, su stats.StatsProvider, opts HubOptions) *Hub {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleRoomTimeout
	}

	return &Hub{
		log:           logger,
		stats:         su,
		relay:         opts.Relay,
		idleTimeout:   opts.IdleTimeout,
		feeds:         make(map[string]*roomFeed),
		subscribeChan: make(chan *Subscription, 64),
		eventChan:     make(chan Event, 256),
		unloadChan:    make(chan *roomFeed, 64),
		stop:          make(chan stopReq),
		done:          make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.subscribeChan:
			f, ok := h.feeds[sub.RoomId]
			if !ok {
				f = h.startFeed(sub.RoomId)
			}
			f.join <- sub
		case ev := <-h.eventChan:
			if f, ok := h.feeds[ev.RoomId]; ok {
				f.events <- ev
			}
		case f := <-h.unloadChan:
			h.handleUnload(f)
		case req := <-h.stop:
			h.log.Info().Int("rooms", len(h.feeds)).Msg("shutting down room feeds")
			for id, f := range h.feeds {
				f.shutdown()
				h.removeFeed(id)
			}
			close(h.done)
			close(req.done)
			return
		}
	}
}

func (h *Hub) startFeed(roomId string) *roomFeed {
	f := newRoomFeed(roomId, h)
	h.feeds[roomId] = f
	h.numFeeds++
	h.stats.Incr(stats.NumActiveRooms)

	go f.start()
	return f
}

func (h *Hub) removeFeed(roomId string) {
	if _, ok := h.feeds[roomId]; !ok {
		return
	}
	delete(h.feeds, roomId)
	h.numFeeds--
	h.stats.Decr(stats.NumActiveRooms)
}

// handleUnload stops an idle feed unless a subscriber arrived after it
// asked to be unloaded.
func (h *Hub) handleUnload(f *roomFeed) {
	if cur, ok := h.feeds[f.roomId]; !ok || cur != f {
		return
	}

	done := make(chan bool)
	f.exit <- exitReq{done: done}
	if <-done {
		h.log.Debug().Str("room_id", f.roomId).Msg("unloaded idle room feed")
		h.removeFeed(f.roomId)
	}
}

// Subscribe attaches to roomId. It returns once the subscription is
// registered, so any state committed afterwards is delivered on C.
func (h *Hub) Subscribe(ctx context.Context, roomId string) (*Subscription, error) {
	if h.stopped() {
		return nil, ErrHubStopped
	}

	sub := newSubscription(roomId)
	select {
	case h.subscribeChan <- sub:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}

	select {
	case <-sub.registered:
		return sub, nil
	case <-h.done:
		return nil, ErrHubStopped
	}
}

// Publish delivers state to local subscribers and, when a relay is
// configured, to other instances.
func (h *Hub) Publish(state types.RoomState) error {
	return h.publish(Event{RoomId: state.Id, State: &state})
}

func (h *Hub) PublishDeleted(roomId string) error {
	return h.publish(Event{RoomId: roomId, Deleted: true})
}

func (h *Hub) publish(ev Event) error {
	if err := h.Deliver(ev); err != nil {
		return err
	}

	if h.relay == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	return h.relay.Publish(ctx, ev)
}

// Deliver routes ev to local subscribers only.
func (h *Hub) Deliver(ev Event) error {
	if h.stopped() {
		return ErrHubStopped
	}

	select {
	case h.eventChan <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info().Msg("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case h.stop <- req:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
