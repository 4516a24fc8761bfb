// Package server exposes the controller to cannelloni clients over TCP.
// Every accepted connection becomes a hub client: frames read from it are
// handed to the SendFunc with the client as origin, and frames broadcast by
// the hub are batched back to it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/hub"
	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
	"github.com/kstaniek/go-mcp2518fd/internal/transport"
)

// SendFunc transmits a CAN frame to the controller. origin is the client the
// frame came from, so its transmit echo can skip that client.
type SendFunc func(origin *hub.Client, fr can.Frame) error

// Codec is the wire format spoken with clients. *cnl.Codec implements it.
type Codec interface {
	transport.FrameDecoder
	transport.FrameBatchEncoder
}

// Stats counts connection and transmit outcomes since the server was created.
type Stats struct {
	Accepted        uint64
	HandshakeFailed uint64
	Rejected        uint64 // over the client limit
	Connected       uint64
	Disconnected    uint64
	TxOverflow      uint64 // frames dropped on a full transmit buffer
	TxRejected      uint64 // frames the controller refused as invalid
	TxErrors        uint64
}

type counters struct {
	accepted, handshakeFailed, rejected, connected, disconnected atomic.Uint64
	txOverflow, txRejected, txErrors                             atomic.Uint64
}

// Server owns the TCP listener and the client sessions.
type Server struct {
	mu    sync.RWMutex
	addr  string
	Hub   *hub.Hub
	Codec Codec
	Send  SendFunc

	frameFilter func(*can.Frame) bool

	flushInterval    time.Duration
	batchSize        int
	readDeadline     time.Duration
	handshakeTimeout time.Duration
	maxClients       int

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener   net.Listener
	sessionsMu sync.Mutex
	sessions   map[*hub.Client]*session
	wg         sync.WaitGroup
	logger     *slog.Logger
	nextConnID atomic.Uint64
	n          counters
}

const (
	defaultFlushInterval    = 5 * time.Millisecond
	defaultBatchSize        = 64
	defaultReadDeadline     = 60 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultClientBuffer     = 512
	acceptRetryDelay        = 200 * time.Millisecond
	keepAlivePeriod         = 30 * time.Second
)

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		addr:             ":0",
		flushInterval:    defaultFlushInterval,
		batchSize:        defaultBatchSize,
		readDeadline:     defaultReadDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		sessions:         make(map[*hub.Client]*session),
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.setAddr(a) } }
func WithHub(hb *hub.Hub) ServerOption     { return func(s *Server) { s.Hub = hb } }
func WithCodec(c Codec) ServerOption       { return func(s *Server) { s.Codec = c } }
func WithSend(send SendFunc) ServerOption  { return func(s *Server) { s.Send = send } }

// WithFrameFilter drops client frames for which fn returns false before
// they reach the SendFunc.
func WithFrameFilter(fn func(*can.Frame) bool) ServerOption {
	return func(s *Server) { s.frameFilter = fn }
}

func positive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func WithFlushInterval(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.flushInterval, d) }
}

func WithBatchSize(n int) ServerOption { return func(s *Server) { positive(&s.batchSize, n) } }

func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.readDeadline, d) }
}

func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.handshakeTimeout, d) }
}

// WithMaxClients limits concurrent sessions. Zero means unlimited.
func WithMaxClients(n int) ServerOption { return func(s *Server) { positive(&s.maxClients, n) } }

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) setAddr(a string) {
	if a == "" {
		a = ":0"
	}
	s.mu.Lock()
	s.addr = a
	s.mu.Unlock()
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) LastError() error       { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:        s.n.accepted.Load(),
		HandshakeFailed: s.n.handshakeFailed.Load(),
		Rejected:        s.n.rejected.Load(),
		Connected:       s.n.connected.Load(),
		Disconnected:    s.n.disconnected.Load(),
		TxOverflow:      s.n.txOverflow.Load(),
		TxRejected:      s.n.txRejected.Load(),
		TxErrors:        s.n.txErrors.Load(),
	}
}

// fail records err as the last error and counts it under its metric label.
func (s *Server) fail(err error) {
	metrics.IncError(mapErrToMetric(err))
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

// Serve listens on Addr and runs sessions until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		s.fail(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// acceptOnce accepts one connection and starts its session. Only listener
// failures are returned; a client that fails the handshake or exceeds the
// limit is closed and forgotten.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(acceptRetryDelay)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		s.fail(wrap)
		return wrap
	}
	s.n.accepted.Add(1)
	log := s.logger.With("conn_id", s.nextConnID.Add(1), "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(keepAlivePeriod)
	}
	if err := s.CannelloniHandshake(ctx, conn); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		s.fail(wrap)
		s.n.handshakeFailed.Add(1)
		log.Warn("handshake_failed", "error", wrap)
		_ = conn.Close()
		return nil
	}
	if s.maxClients > 0 && s.Hub != nil && s.Hub.Count() >= s.maxClients {
		s.n.rejected.Add(1)
		metrics.IncHubReject()
		log.Warn("client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}
	ss := s.open(conn, log)
	s.n.connected.Add(1)
	log.Info("client_connected")
	s.wg.Add(2)
	go ss.writeLoop(ctx.Done())
	go ss.readLoop(ctx.Done())
	return nil
}

// open registers a hub client for conn.
func (s *Server) open(conn net.Conn, log *slog.Logger) *session {
	size := defaultClientBuffer
	if s.Hub != nil && s.Hub.OutBufSize > 0 {
		size = s.Hub.OutBufSize
	}
	ss := &session{
		srv:    s,
		conn:   conn,
		client: &hub.Client{Out: make(chan can.Frame, size), Closed: make(chan struct{})},
		log:    log,
		done:   make(chan struct{}),
	}
	s.sessionsMu.Lock()
	s.sessions[ss.client] = ss
	s.sessionsMu.Unlock()
	if s.Hub != nil {
		s.Hub.Add(ss.client)
		metrics.SetHubClients(s.Hub.Count())
	}
	return ss
}

// release drops the session from the hub and the session table. Safe to
// call more than once.
func (s *Server) release(ss *session) {
	s.sessionsMu.Lock()
	_, ok := s.sessions[ss.client]
	delete(s.sessions, ss.client)
	s.sessionsMu.Unlock()
	if !ok {
		return
	}
	if s.Hub != nil {
		s.Hub.Remove(ss.client)
	}
}

// Shutdown closes the listener and every session, then waits for their
// goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.sessionsMu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		open = append(open, ss)
	}
	s.sessionsMu.Unlock()
	for _, ss := range open {
		_ = ss.conn.Close()
		s.release(ss)
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		st := s.Stats()
		s.logger.Info("shutdown_summary",
			"accepted", st.Accepted, "handshake_fail", st.HandshakeFailed, "rejected", st.Rejected,
			"connected", st.Connected, "disconnected", st.Disconnected,
			"tx_overflow", st.TxOverflow, "tx_rejected", st.TxRejected, "tx_errors", st.TxErrors)
		return nil
	}
}
