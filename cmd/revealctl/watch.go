package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-reveal/internal/presentation"
	"github.com/npezzotti/go-reveal/internal/server"
	"github.com/rs/zerolog"
)

const defaultSyncDelay = 3 * time.Second

// watcher is a headless spectator. It feeds room snapshots into a
// presentation machine and prints the screens and effects that result.
type watcher struct {
	machine   *presentation.Machine
	out       io.Writer
	syncDelay time.Duration
	shown     presentation.Screen
	log       zerolog.Logger
}

func newWatcher(out io.Writer, syncDelay time.Duration, logger zerolog.Logger) *watcher {
	m := presentation.NewMachine(presentation.RoleSpectator)
	return &watcher{
		machine:   m,
		out:       out,
		syncDelay: syncDelay,
		shown:     m.Screen(),
		log:       logger,
	}
}

func roomURL(base, roomId string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws/rooms/" + url.PathEscape(roomId)
	return u.String(), nil
}

func runWatch(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server base url")
	syncDelay := fs.Duration("sync", defaultSyncDelay, "time spent on the sync screen once the room is armed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("watch takes exactly one room id")
	}

	target, err := roomURL(*serverURL, fs.Arg(0))
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	logger.Info().Str("url", target).Msg("watching room")
	return newWatcher(stdout, *syncDelay, logger).run(ctx, conn)
}

// run blocks until the context is done or the server closes the socket.
func (w *watcher) run(ctx context.Context, conn *websocket.Conn) error {
	msgs := make(chan *server.ServerMessage)
	readErr := make(chan error, 1)

	go func() {
		for {
			var msg server.ServerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	w.printScreen()

	var syncTimer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Info().Msg("server closed the connection")
				return nil
			}
			return err
		case msg := <-msgs:
			if w.handle(msg) {
				syncTimer = time.After(w.syncDelay)
			}
		case <-syncTimer:
			syncTimer = nil
			w.apply(w.machine.SyncComplete())
		}
	}
}

// handle applies one server message and reports whether the machine has
// just entered the sync screen.
func (w *watcher) handle(msg *server.ServerMessage) bool {
	if msg.Response != nil && msg.Response.Error != "" {
		w.log.Warn().Int("code", msg.Response.ResponseCode).Msg(msg.Response.Error)
	}
	if msg.Room == nil {
		return false
	}
	if !msg.Room.Exists {
		w.machine.Observe(nil)
		fmt.Fprintln(w.out, "room does not exist")
		return false
	}

	before := w.machine.Screen()
	w.apply(w.machine.Observe(msg.Room.State))

	return before != presentation.ScreenSyncPending && w.machine.Screen() == presentation.ScreenSyncPending
}

func (w *watcher) apply(effects []presentation.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case presentation.EffectPlay:
			fmt.Fprintf(w.out, "play https://www.youtube.com/watch?v=%s&t=%ds\n", e.VideoId, e.StartAt)
		default:
			fmt.Fprintln(w.out, string(e.Kind))
		}
	}
	if w.machine.Screen() != w.shown {
		w.printScreen()
	}
}

func (w *watcher) printScreen() {
	w.shown = w.machine.Screen()
	fmt.Fprintf(w.out, "screen: %s\n", w.shown)
}
