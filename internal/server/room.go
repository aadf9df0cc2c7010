package server

import (
	"sync"
	"time"

	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/rs/zerolog"
)

const subscriberBuffer = 16

type exitReq struct {
	shutdown bool
	done     chan bool
}

// Subscription is one listener on a room channel. C is closed when the
// subscription ends, either through Close or hub shutdown.
type Subscription struct {
	RoomId string
	C      <-chan Event

	c          chan Event
	feed       *roomFeed
	registered chan struct{}
	closeOnce  sync.Once
}

func newSubscription(roomId string) *Subscription {
	c := make(chan Event, subscriberBuffer)
	return &Subscription{
		RoomId:     roomId,
		C:          c,
		c:          c,
		registered: make(chan struct{}),
	}
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.feed == nil {
			return
		}
		select {
		case s.feed.leave <- s:
		case <-s.feed.done:
		}
	})
}

// roomFeed owns the subscribers of one room.
type roomFeed struct {
	roomId      string
	hub         *Hub
	log         zerolog.Logger
	subscribers map[*Subscription]struct{}
	join        chan *Subscription
	leave       chan *Subscription
	events      chan Event
	// killTimer unloads the feed once it has had no subscribers for the
	// hub's idle timeout.
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newRoomFeed(roomId string, h *Hub) *roomFeed {
	return &roomFeed{
		roomId:      roomId,
		hub:         h,
		log:         h.log.With().Str("room_id", roomId).Logger(),
		subscribers: make(map[*Subscription]struct{}),
		join:        make(chan *Subscription, 64),
		leave:       make(chan *Subscription, 64),
		events:      make(chan Event, 256),
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}
}

func (f *roomFeed) start() {
	f.log.Debug().Msg("starting room feed")
	f.killTimer = time.NewTimer(f.hub.idleTimeout)
	f.killTimer.Stop()
	defer close(f.done)

	for {
		select {
		case sub := <-f.join:
			f.addSubscriber(sub)
		case sub := <-f.leave:
			f.removeSubscriber(sub)
		case ev := <-f.events:
			f.broadcast(ev)
		case <-f.killTimer.C:
			f.handleTimeout()
		case e := <-f.exit:
			if !e.shutdown && (len(f.subscribers) > 0 || len(f.join) > 0) {
				e.done <- false
				continue
			}
			f.handleExit()
			e.done <- true
			return
		}
	}
}

func (f *roomFeed) shutdown() {
	done := make(chan bool)
	f.exit <- exitReq{shutdown: true, done: done}
	<-done
}

func (f *roomFeed) handleTimeout() {
	f.log.Debug().Msg("room feed timed out")
	select {
	case f.hub.unloadChan <- f:
	default:
		f.killTimer.Reset(f.hub.idleTimeout)
	}
}

func (f *roomFeed) handleExit() {
	f.killTimer.Stop()
	for sub := range f.subscribers {
		f.dropSubscriber(sub)
	}
}

func (f *roomFeed) addSubscriber(sub *Subscription) {
	f.killTimer.Stop()

	sub.feed = f
	f.subscribers[sub] = struct{}{}
	f.hub.stats.Incr(stats.NumSubscribers)
	close(sub.registered)
}

func (f *roomFeed) removeSubscriber(sub *Subscription) {
	if _, ok := f.subscribers[sub]; !ok {
		return
	}
	f.dropSubscriber(sub)

	if len(f.subscribers) == 0 {
		f.log.Debug().Msg("no subscribers, starting kill timer")
		f.killTimer.Reset(f.hub.idleTimeout)
	}
}

func (f *roomFeed) dropSubscriber(sub *Subscription) {
	delete(f.subscribers, sub)
	close(sub.c)
	f.hub.stats.Decr(stats.NumSubscribers)
}

// broadcast never blocks on a slow subscriber: when its buffer is full the
// oldest queued event is discarded to make room, since every event
// carries a complete snapshot.
func (f *roomFeed) broadcast(ev Event) {
	for sub := range f.subscribers {
		select {
		case sub.c <- ev:
			continue
		default:
		}

		select {
		case <-sub.c:
		default:
		}
		f.hub.stats.Incr(stats.NumDroppedEvents)
		f.log.Warn().Msg("subscriber buffer full, dropped oldest event")

		select {
		case sub.c <- ev:
		default:
		}
	}
}
