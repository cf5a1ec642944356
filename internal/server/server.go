// Package server owns the loopback TCP listener and the per-connection
// goroutines that bridge sockets and the worker queue. A connection reads
// one length-framed query at a time, runs it through the login gate and
// the role whitelist, enqueues it, and flushes the response the worker
// left in the shared buffer. Workers never touch sockets.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/metrics"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/config"
)

// shutdownReadDeadline is how long blocked reads get to notice a shutdown
// before their connections are considered stuck.
const shutdownReadDeadline = 100 * time.Millisecond

// Server accepts connections on 127.0.0.1 and serves each on its own
// goroutine. At most MaxConnections are served at once; the accept loop
// holds off on a semaphore while the table is full, so the listen backlog
// absorbs bursts instead of the server dropping them.
type Server struct {
	cfg             config.ServerConfig
	shutdownTimeout time.Duration

	queue     *query.Queue
	collector *metrics.Collector

	listener   net.Listener
	listenerMu sync.Mutex

	// ready is closed once the listener is bound. With a configured port
	// of zero the OS picks one; Addr blocks on ready to report it.
	ready chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// connCtx is canceled during shutdown to abort queries in flight.
	connCtx    context.Context
	cancelConn context.CancelFunc

	conns     sync.Map // connection id -> net.Conn
	active    sync.WaitGroup
	connCount atomic.Int32
	connSeq   atomic.Uint64

	sem chan struct{}
}

// New builds a server around an already running queue. Nothing is bound
// until Serve.
func New(cfg *config.Config, queue *query.Queue, collector *metrics.Collector) *Server {
	maxConns := cfg.Server.MaxConnections
	if maxConns < 1 {
		maxConns = 1
	}

	connCtx, cancelConn := context.WithCancel(context.Background())

	return &Server{
		cfg:             cfg.Server,
		shutdownTimeout: cfg.ShutdownTimeout,
		queue:           queue,
		collector:       collector,
		ready:           make(chan struct{}),
		shutdown:        make(chan struct{}),
		connCtx:         connCtx,
		cancelConn:      cancelConn,
		sem:             make(chan struct{}, maxConns),
	}
}

// Serve binds the loopback listener and accepts until ctx is canceled or
// Stop is called, then waits for live connections to drain. Connections
// from non-loopback peers are closed before any byte is read.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ready)

	logger.Info("Accepting connections",
		logger.Address(listener.Addr().String()),
		slog.Int("max_connections", cap(s.sem)))

	go func() {
		select {
		case <-ctx.Done():
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	for {
		// The slot is taken before Accept so a full table parks new
		// clients in the listen backlog instead of churning them.
		select {
		case s.sem <- struct{}{}:
		case <-s.shutdown:
			return s.gracefulShutdown()
		}

		sock, err := listener.Accept()
		if err != nil {
			<-s.sem
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}
			logger.Error("Failed to accept connection", logger.Err(err))
			continue
		}

		if !loopback(sock.RemoteAddr()) {
			logger.Warn("Rejecting connection from non-loopback address",
				logger.RemoteAddr(sock.RemoteAddr().String()))
			s.collector.ConnectionRejected("not_loopback")
			sock.Close()
			<-s.sem
			continue
		}

		if tcp, ok := sock.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		id := s.connSeq.Add(1)
		s.conns.Store(id, sock)
		s.active.Add(1)
		s.connCount.Add(1)
		s.collector.ConnectionAccepted()
		logger.Debug("Connection accepted",
			logger.ConnectionID(id),
			logger.RemoteAddr(sock.RemoteAddr().String()),
			slog.Int("active", int(s.connCount.Load())))

		c := newConnection(s, sock, id)
		go func() {
			defer func() {
				s.conns.Delete(id)
				s.connCount.Add(-1)
				s.collector.ConnectionClosed()
				logger.Debug("Connection closed",
					logger.ConnectionID(id),
					slog.Int("active", int(s.connCount.Load())))
				s.active.Done()
				<-s.sem
			}()
			c.serve(s.connCtx)
		}()
	}
}

// initiateShutdown stops the accept loop, knocks blocked readers loose,
// and cancels in-flight query contexts. Idempotent.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Server shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", logger.Err(err))
			}
		}
		s.listenerMu.Unlock()

		// A short deadline unblocks reads so the serve loops observe the
		// closed shutdown channel.
		deadline := time.Now().Add(shutdownReadDeadline)
		s.conns.Range(func(_, value any) bool {
			value.(net.Conn).SetReadDeadline(deadline)
			return true
		})

		s.cancelConn()
	})
}

// gracefulShutdown waits for active connections to finish their current
// exchange, force closing whatever remains when the timeout expires.
func (s *Server) gracefulShutdown() error {
	logger.Info("Waiting for connections to drain",
		slog.Int("active", int(s.connCount.Load())))

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All connections closed")
		return nil

	case <-time.After(s.shutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timed out, force closing connections",
			slog.Int("active", int(remaining)))
		s.conns.Range(func(_, value any) bool {
			value.(net.Conn).Close()
			return true
		})
		return fmt.Errorf("shutdown timeout: %d connection(s) force closed", remaining)
	}
}

// Stop initiates shutdown and waits for connections to drain. Safe to
// call repeatedly and concurrently with Serve.
func (s *Server) Stop() error {
	s.initiateShutdown()
	return s.gracefulShutdown()
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of connections currently served.
func (s *Server) ConnectionCount() int {
	return int(s.connCount.Load())
}

// loopback reports whether the peer address is a loopback address. The
// listener only binds 127.0.0.1, so this is a belt check against exotic
// socket configurations.
func loopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	return ok && tcp.IP.IsLoopback()
}
