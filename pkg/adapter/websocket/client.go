package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marmos91/atlasfs/pkg/events"
)

// maxClientMessage caps data frames from clients, which are discarded anyway.
const maxClientMessage = 4096

// client relays bus events to one WebSocket connection.
type client struct {
	server *Adapter
	conn   *websocket.Conn
	addr   string
	id     string
}

func newClient(server *Adapter, conn *websocket.Conn, id string) *client {
	return &client{
		server: server,
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		id:     id,
	}
}

// serve forwards events from sub until the peer goes away, a send fails or
// ctx is cancelled. The caller owns sub and closes it.
func (c *client) serve(ctx context.Context, sub *events.Subscription) {
	log := c.server.log

	defer c.conn.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.readLoop(cancel)
	if c.server.config.PingInterval > 0 {
		go c.pingLoop(loopCtx, cancel)
	}

	for {
		event, err := sub.Recv(loopCtx)
		if err != nil {
			var lag *events.LagError
			switch {
			case errors.As(err, &lag):
				log.Warn("WebSocket client %s lagged: %d event(s) missed", c.addr, lag.Missed)
				continue
			case errors.Is(err, events.ErrClosed):
				c.closeWith(websocket.CloseGoingAway, "event bus closed")
			case ctx.Err() != nil:
				c.closeWith(websocket.CloseGoingAway, "server shutting down")
			default:
				log.Debug("WebSocket client %s went away", c.addr)
			}
			return
		}

		if err := c.send(event); err != nil {
			log.Debug("WebSocket send to %s failed: %v", c.addr, err)
			return
		}
	}
}

func (c *client) send(event string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
		return err
	}
	c.server.metrics.RecordFrameSent()
	return nil
}

func (c *client) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	deadline := time.Now().Add(c.server.config.WriteTimeout)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.server.log.Debug("WebSocket close frame to %s failed: %v", c.addr, err)
	}
}

// readLoop services control frames. Data frames are discarded. Any read
// error, including a missed pong, ends the client.
func (c *client) readLoop(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxClientMessage)
	if ping := c.server.config.PingInterval; ping > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * ping))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(2 * ping))
		})
	}

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.log.Debug("WebSocket client %s read error: %v", c.addr, err)
			}
			return
		}
	}
}

func (c *client) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.server.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.server.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.server.log.Debug("WebSocket ping to %s failed: %v", c.addr, err)
				cancel()
				return
			}
		}
	}
}
