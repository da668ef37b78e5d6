package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one connected participant from the host's point of view: a
// websocket plus a buffered outbound queue. The connection id doubles as the
// player id while the connection lives.
type client struct {
	id   string
	conn *websocket.Conn
	send chan Envelope

	// player is the roster record bound to this connection after a valid
	// join. Touched only by the room's event loop.
	player *Player
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan Envelope, 8),
	}
}

// trySend queues an envelope without blocking the event loop. A full queue
// means the client has stalled; the caller drops it and lets the disconnect
// path reconcile.
func (c *client) trySend(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) readPump(room *Room) {
	defer func() {
		select {
		case room.unreg <- c:
		case <-room.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case room.inbound <- inboundMsg{from: c, env: env}:
		case <-room.ctx.Done():
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// serveRoomWS upgrades the connection and hands it to the room identified by
// :code. Unknown codes are a 404: rooms are created by the host process, not
// by whoever dials in.
func serveRoomWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		room := rm.lookup(code)
		if room == nil {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.log.Debug().Err(err).Str("room", code).Msg("websocket upgrade failed")
			return
		}

		c := newClient(newConnID(), conn)
		select {
		case room.register <- c:
		case <-room.ctx.Done():
			_ = conn.Close()
			return
		}

		go c.writePump()
		c.readPump(room)
	}
}

// dialHost opens the client side of the transport. A failed dial is returned
// to the caller; reconnect backoff is the caller's decision.
func dialHost(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
