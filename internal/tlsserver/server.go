// Package tlsserver is the loopback mTLS listener that speaks the CoT
// XML stream protocol to same-device TAK clients: protocol negotiation,
// keepalives, `</event>`-delimited framing, and fan-out broadcast to
// every connected client.
package tlsserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atakgw/meshtak/internal/certstore"
	"github.com/atakgw/meshtak/internal/cot"
)

// ListenAddress is the fixed loopback-only address this server binds:
// only same-device TAK clients may ever connect.
const ListenAddress = "127.0.0.1:8089"

// KeepalivePeriod is the TCP-level idle interval enabled on every
// accepted connection, independent of the application-level CoT
// keepalive event (see KeepaliveInterval in protocol.go).
const KeepalivePeriod = 60 * time.Second

// EventHandler receives every CoT event a connected client sends, once
// protocol-control traffic has already been filtered out.
type EventHandler interface {
	HandleClientEvent(ev *cot.Event)
}

// Server is the mTLS CoT stream listener.
type Server struct {
	certs   *certstore.Store
	handler EventHandler
	logger  *log.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[uint64]*connection
	nextID   uint64
	enabled  atomic.Bool
}

// New constructs a Server. handler may be nil (client events are simply
// dropped), useful for protocol-only tests.
func New(certs *certstore.Store, handler EventHandler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		certs:   certs,
		handler: handler,
		logger:  logger,
		conns:   make(map[uint64]*connection),
	}
}

// Enabled reports whether the server is currently listening.
func (s *Server) Enabled() bool {
	return s.enabled.Load()
}

// buildTLSConfig resolves the active server identity and client CA
// anchors into a tls.Config requiring and verifying client certificates
// against exactly that anchor set. Per spec, an empty anchor set means
// every client connection must be rejected.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	identity, err := s.certs.ActiveServerIdentity()
	if err != nil {
		return nil, fmt.Errorf("tlsserver: resolving server identity: %w", err)
	}

	anchors, err := s.certs.ClientCAAnchors()
	if err != nil {
		return nil, fmt.Errorf("tlsserver: resolving client ca anchors: %w", err)
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("tlsserver: no client ca anchors configured, refusing to start")
	}

	pool := x509.NewCertPool()
	for _, anchor := range anchors {
		pool.AddCert(anchor)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{identity.Certificate},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
	}, nil
}

// Run opens the listener and serves connections until ctx is cancelled.
// Listener failure surfaces as an error and leaves Enabled() false;
// context cancellation is a clean stop.
func (s *Server) Run(ctx context.Context) error {
	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		return err
	}

	listener, err := tls.Listen("tcp", ListenAddress, tlsConfig)
	if err != nil {
		return fmt.Errorf("tlsserver: listen failed: %w", err)
	}

	return s.serve(ctx, listener)
}

// serve is split out from Run so tests can supply a plain (non-TLS)
// listener and exercise the protocol/framing logic without real certs.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.enabled.Store(true)

	defer func() {
		s.enabled.Store(false)
		listener.Close()
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Printf("[tlsserver] shutdown requested")
				return nil
			}
			s.logger.Printf("[tlsserver] listener failed: %v", err)
			return fmt.Errorf("tlsserver: accept failed: %w", err)
		}

		enableTCPKeepalive(conn, s.logger)

		s.mu.Lock()
		id := s.nextID
		s.nextID++
		c := newConnection(id, conn, s)
		s.conns[id] = c
		s.mu.Unlock()

		go c.run(ctx)
	}
}

// tcpConn is satisfied by *net.TCPConn directly and by *tls.Conn via its
// NetConn accessor, which is how a real tls.Listen connection reaches the
// socket underneath. Test listeners built on net.Pipe satisfy neither, so
// this is a no-op for them.
type tcpConn interface {
	SetKeepAlive(bool) error
	SetKeepAlivePeriod(time.Duration) error
}

// enableTCPKeepalive turns on transport-level keepalive with a 60s idle
// interval on the underlying TCP socket, independent of the application's
// own CoT keepalive event. conn is whatever net.Listener.Accept returned;
// anything that isn't ultimately backed by a *net.TCPConn is left alone.
func enableTCPKeepalive(conn net.Conn, logger *log.Logger) {
	target := conn
	if unwrapper, ok := conn.(interface{ NetConn() net.Conn }); ok {
		target = unwrapper.NetConn()
	}

	tc, ok := target.(tcpConn)
	if !ok {
		return
	}
	if err := tc.SetKeepAlive(true); err != nil {
		logger.Printf("[tlsserver] enabling tcp keepalive: %v", err)
		return
	}
	if err := tc.SetKeepAlivePeriod(KeepalivePeriod); err != nil {
		logger.Printf("[tlsserver] setting tcp keepalive period: %v", err)
	}
}

func (s *Server) removeConnection(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Broadcast serializes ev once and sends it to every currently-ready
// connection. A send failure disconnects that connection only; the
// broadcast itself never fails. Satisfies internal/transport.Broadcaster.
func (s *Server) Broadcast(ev *cot.Event) {
	payload := cot.Serialize(ev)

	s.mu.Lock()
	targets := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		if c.getState() == stateReady {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			s.logger.Printf("[tlsserver] conn %d: broadcast send failed, disconnecting: %v", c.id, err)
			c.cancel()
		}
	}
}

// ConnectionCount reports the number of currently tracked connections,
// for tests and diagnostics.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
