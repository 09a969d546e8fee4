package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	wire "github.com/marmos91/atlasfs/internal/protocol/command"
)

// Connection serves one client of the command port.
type Connection struct {
	server *Adapter
	conn   net.Conn
	reader *bufio.Reader
	buf    []byte

	clientAddr string
	clientHost string
	clientID   string
}

func newConnection(server *Adapter, conn net.Conn) *Connection {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	c := &Connection{
		server:     server,
		conn:       conn,
		clientAddr: addr,
		clientHost: host,
	}
	if server.config.Framing == FramingRaw {
		c.buf = make([]byte, server.config.BufferSize)
	} else {
		c.reader = bufio.NewReader(conn)
	}
	return c
}

// Serve runs the request loop until the client disconnects, an I/O error
// occurs or ctx is cancelled while the connection is between requests.
func (c *Connection) Serve(ctx context.Context) {
	log := c.server.log

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in command connection from %s: %v\n%s", c.clientAddr, r, debug.Stack())
		}
		_ = c.conn.Close()
	}()

	c.clientID = c.server.registry.RegisterClient(Protocol, c.clientAddr)
	defer c.server.registry.UnregisterClient(c.clientID)

	// Interrupt a pending read on shutdown. Writes are never interrupted,
	// so a response already being sent is delivered in full.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			log.Debug("Command connection from %s closed due to server shutdown", c.clientAddr)
			return
		}

		err := c.handleRequest(ctx)
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			log.Debug("Command connection from %s closed by client", c.clientAddr)
		case ctx.Err() != nil:
			log.Debug("Command connection from %s closed due to server shutdown", c.clientAddr)
		case isTimeout(err):
			log.Debug("Command connection from %s timed out: %v", c.clientAddr, err)
		default:
			log.Error("Command connection from %s failed: %v", c.clientAddr, err)
		}
		return
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// handleRequest reads, processes and answers exactly one request.
// A returned error ends the connection.
func (c *Connection) handleRequest(ctx context.Context) error {
	message, err := c.readMessage(ctx)
	if err != nil {
		return err
	}
	c.server.metrics.RecordBytes("in", len(message))

	// The request is processed and answered even if shutdown starts now.
	reqCtx := context.WithoutCancel(ctx)

	if !c.server.limiter.Allow(c.clientHost) {
		c.server.metrics.RecordRateLimited()
		c.server.log.Debug("Rate limiting command client %s: tokens=%.2f",
			c.clientAddr, c.server.limiter.Tokens(c.clientHost))
		if err := c.server.limiter.Wait(ctx, c.clientHost); err != nil {
			return err
		}
	}

	return c.writeResponse(c.process(reqCtx, message))
}

func (c *Connection) process(ctx context.Context, message []byte) []byte {
	log := c.server.log

	req, err := c.server.codec.Decode(message)
	if err != nil {
		log.Error("Failed to decode %s request from %s: %v", c.server.codec.Name(), c.clientAddr, err)
		c.server.metrics.RecordDecodeError(c.server.codec.Name())
		return []byte(decodeErrorResponse(c.server.codec))
	}

	log.Debug("Command %s from %s: subject=%q", req.Operation, c.clientAddr, req.Subject)

	start := time.Now()
	outcome := c.server.registry.Processor().Process(ctx, req)
	c.server.metrics.RecordCommand(req.Operation.String(), outcome.Kind.String(), time.Since(start))

	return outcome.Response()
}

func decodeErrorResponse(codec wire.Codec) string {
	switch codec.Name() {
	case "protobuf":
		return "Invalid Protobuf request"
	case "xdr":
		return "Invalid XDR request"
	default:
		return fmt.Sprintf("Invalid %s request", codec.Name())
	}
}

func (c *Connection) readMessage(ctx context.Context) ([]byte, error) {
	cfg := c.server.config

	// The idle timeout covers the wait for the first byte of a request; the
	// read timeout covers the rest of it.
	wait := cfg.IdleTimeout
	if wait == 0 {
		wait = cfg.ReadTimeout
	}
	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	// Shutdown may have interrupted reads just before the deadline reset.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Framing == FramingRaw {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			// A read that returned data is a message even if it also
			// reported an error; the error resurfaces on the next read.
			return append([]byte(nil), c.buf[:n]...), nil
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}

	if _, err := c.reader.Peek(1); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	message, err := wire.ReadFrame(c.reader, cfg.MaxMessageSize)
	if errors.Is(err, wire.ErrFrameTooLarge) {
		// The oversized payload is still on the wire, so the stream cannot
		// be resynchronised.
		c.server.log.Warn("Command request from %s rejected: %v", c.clientAddr, err)
	}
	return message, err
}

func (c *Connection) writeResponse(response []byte) error {
	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	var err error
	if c.server.config.Framing == FramingRaw {
		// Raw protobuf replies are bare; other encodings end with a newline
		// so line-oriented clients can find the end of the reply.
		if c.server.codec.Name() != "protobuf" {
			response = append(response, '\n')
		}
		_, err = c.conn.Write(response)
	} else {
		err = wire.WriteFrame(c.conn, response)
	}
	if err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	c.server.metrics.RecordBytes("out", len(response))
	return nil
}
