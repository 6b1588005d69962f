package tlsserver

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atakgw/meshtak/internal/cot"
)

// connState is the per-connection lifecycle, per the concurrency model:
// ready is the only state in which sends, receives, and keepalives run.
type connState int

const (
	stateSetup connState = iota
	statePreparing
	stateReady
	stateCancelled
	stateFailed
)

func (s connState) String() string {
	switch s {
	case stateSetup:
		return "setup"
	case statePreparing:
		return "preparing"
	case stateReady:
		return "ready"
	case stateCancelled:
		return "cancelled"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// connection owns one accepted client socket: its framing buffer, its
// write serialization, and its lifecycle state.
type connection struct {
	id     uint64
	conn   net.Conn
	server *Server
	logger *log.Logger

	// serverUID correlates this connection's log lines across restarts
	// and across other connections sharing the same numeric id sequence
	// reset; it never appears on the wire, only in diagnostics.
	serverUID string

	mu                sync.Mutex
	state             connState
	negotiated        bool
	buf               []byte
	writeMu           sync.Mutex

	cancel context.CancelFunc
}

func newConnection(id uint64, conn net.Conn, server *Server) *connection {
	return &connection{
		id:        id,
		conn:      conn,
		server:    server,
		logger:    server.logger,
		state:     stateSetup,
		serverUID: uuid.NewString(),
	}
}

func (c *connection) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *connection) getState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run drives the connection's whole lifecycle: handshake, protocol
// negotiation, keepalive ticker, and the read loop. It returns once the
// connection is done, having already closed the socket.
func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()
	defer c.conn.Close()
	defer c.server.removeConnection(c.id)

	c.setState(statePreparing)
	if tlsConn, ok := c.conn.(interface{ HandshakeContext(context.Context) error }); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			c.logger.Printf("[tlsserver] conn %d (%s): tls handshake failed: %v", c.id, c.serverUID, err)
			c.setState(stateFailed)
			return
		}
	}

	c.setState(stateReady)
	c.logger.Printf("[tlsserver] conn %d (%s): ready", c.id, c.serverUID)
	if err := c.send(takProtocolSupportEvent(time.Now())); err != nil {
		c.logger.Printf("[tlsserver] conn %d (%s): sending protocol support event: %v", c.id, c.serverUID, err)
		c.setState(stateFailed)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.keepaliveLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.readLoop(ctx)
	}()
	wg.Wait()

	if c.getState() == stateReady {
		c.setState(stateCancelled)
	}
}

func (c *connection) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(keepaliveEvent(time.Now())); err != nil {
				c.logger.Printf("[tlsserver] conn %d: keepalive send failed: %v", c.id, err)
				c.cancel()
				return
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context) {
	chunk := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			c.drainFrames()
			c.enforceBufferCap()
		}
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Printf("[tlsserver] conn %d: read error: %v", c.id, err)
			}
			c.cancel()
			return
		}
	}
}

func (c *connection) drainFrames() {
	for {
		msg, rest, ok := extractFrame(c.buf)
		if !ok {
			return
		}
		c.buf = rest
		if len(msg) > MaxMessageSize {
			c.logger.Printf("[tlsserver] conn %d: dropping oversized message (%d bytes)", c.id, len(msg))
			continue
		}
		c.handleMessage(msg)
	}
}

// enforceBufferCap clears the unconsumed buffer if it has grown past
// MaxBufferSize without yielding a complete event — the DoS guard
// against a client that never closes an <event> tag.
func (c *connection) enforceBufferCap() {
	if len(c.buf) > MaxBufferSize {
		c.logger.Printf("[tlsserver] conn %d: buffer exceeded %d bytes without a complete event, clearing", c.id, MaxBufferSize)
		c.buf = nil
	}
}

func (c *connection) handleMessage(msg []byte) {
	ev, err := cot.Parse(msg)
	if err != nil {
		c.logger.Printf("[tlsserver] conn %d: dropping unparseable event: %v", c.id, err)
		return
	}

	if ev.Type == typeProtocolQuery {
		c.mu.Lock()
		c.negotiated = true
		c.mu.Unlock()
		if err := c.send(takProtocolReplyEvent(time.Now())); err != nil {
			c.logger.Printf("[tlsserver] conn %d: sending protocol reply: %v", c.id, err)
		}
		return
	}

	if cot.IsProtocolControl(ev.Type, ev.UID) {
		return
	}

	if c.server.handler != nil {
		c.server.handler.HandleClientEvent(ev)
	}
}

// send writes raw bytes to the connection. Serialized against
// concurrent keepalive/broadcast writers on the same socket.
func (c *connection) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(payload)
	return err
}

func (c *connection) isNegotiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}
