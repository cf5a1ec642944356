package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/bufpool"
)

// connection serves one accepted socket. The first frame must authorize
// the peer; every later frame passes the role whitelist, rides the queue
// to a worker, and is answered from the same buffer it arrived in.
type connection struct {
	srv  *Server
	sock net.Conn
	id   uint64

	authorized bool
	role       protocol.Role
	worldID    int
	world      string
}

func newConnection(srv *Server, sock net.Conn, id uint64) *connection {
	return &connection{srv: srv, sock: sock, id: id}
}

// serve runs the connection's read-enqueue-flush loop until the peer
// disconnects, a protocol rule closes the connection, or the server
// shuts down.
func (c *connection) serve(ctx context.Context) {
	defer c.sock.Close()

	lc := logger.NewLogContext(c.id, c.sock.RemoteAddr().String())
	ctx = logger.WithContext(ctx, lc)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Panic while serving connection",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	buf := bufpool.Get(int(c.srv.cfg.BufferSize))
	defer bufpool.Put(buf)

	for {
		select {
		case <-ctx.Done():
			logger.DebugCtx(ctx, "Closing connection: shutdown in progress")
			return
		default:
		}

		if idle := c.srv.cfg.MaxConnectionIdleTime; idle > 0 {
			if err := c.sock.SetDeadline(time.Now().Add(idle)); err != nil {
				logger.WarnCtx(ctx, "Failed to set connection deadline", logger.Err(err))
				return
			}
		}

		size, err := protocol.ReadFrame(c.sock, buf)
		if err != nil {
			c.logDisconnect(ctx, err)
			return
		}

		op := protocol.Opcode(buf[0])
		qctx := logger.WithContext(ctx, lc.WithQuery(op.String()))
		q := query.New(qctx, buf, size)

		if !c.authorized {
			if !c.authorize(qctx, q, buf) {
				return
			}
			lc = lc.WithRole(c.role.String(), c.world)
			ctx = logger.WithContext(ctx, lc)
			continue
		}

		if !c.process(qctx, q) {
			return
		}
	}
}

// authorize runs the login gate on the connection's first frame. It
// reports whether the peer authorized; any refusal is flushed before the
// false return closes the connection.
func (c *connection) authorize(ctx context.Context, q *query.Query, buf []byte) bool {
	if q.Opcode() != protocol.OpLogin {
		logger.ErrorCtx(ctx, "Unauthorized query", logger.Query(q.Opcode().String()))
		return c.reject(ctx, q)
	}

	req := q.Request()
	role := protocol.Role(req.Read8())
	password := req.ReadString(30)
	var world string
	if role == protocol.RoleGame {
		world = req.ReadString(30)
	}
	if req.Overflowed() {
		logger.ErrorCtx(ctx, "Malformed login query")
		return c.reject(ctx, q)
	}

	if password != c.srv.cfg.Password {
		logger.WarnCtx(ctx, "Invalid login attempt")
		return c.reject(ctx, q)
	}

	switch role {
	case protocol.RoleGame:
		return c.authorizeGame(ctx, q, buf, world)

	case protocol.RoleLogin, protocol.RoleWeb:
		c.authorized = true
		c.role = role
		logger.InfoCtx(ctx, "Connection authorized", logger.Role(role.String()))
		q.Ok()
		return c.flush(ctx, q)

	default:
		logger.WarnCtx(ctx, "Rejecting connection: unknown application role",
			slog.Int("role", int(role)))
		return c.reject(ctx, q)
	}
}

// authorizeGame binds the connection to the world it announced. The login
// frame is rewritten in place into the internal world resolution query and
// enqueued like any other work item; on success its bodyless Ok response
// doubles as the login reply.
func (c *connection) authorizeGame(ctx context.Context, q *query.Query, buf []byte, world string) bool {
	w := protocol.NewWriteBuffer(buf)
	w.Write8(uint8(protocol.OpResolveWorld))
	w.WriteString(world)
	if w.Overflowed() {
		logger.ErrorCtx(ctx, "Rejecting connection: unable to rewrite login query",
			logger.World(world))
		return c.reject(ctx, q)
	}

	rctx := logger.WithContext(ctx,
		logger.FromContext(ctx).WithQuery(protocol.OpResolveWorld.String()))
	resolve := query.New(rctx, buf, w.Position())
	if !c.srv.queue.Enqueue(resolve) {
		resolve.FailPending()
		c.flush(ctx, resolve)
		return false
	}
	<-resolve.Done()

	if resolve.Status() != protocol.StatusOK || resolve.WorldID() <= 0 {
		logger.WarnCtx(ctx, "Rejecting connection: unknown game world",
			logger.World(world))
		c.reject(ctx, resolve)
		resolve.Release()
		return false
	}

	c.authorized = true
	c.role = protocol.RoleGame
	c.world = world
	c.worldID = resolve.WorldID()
	logger.InfoCtx(ctx, "Connection authorized",
		logger.Role(c.role.String()),
		logger.World(world),
		logger.WorldID(c.worldID))

	ok := c.flush(ctx, resolve)
	resolve.Release()
	return ok
}

// reject answers an unauthorized peer with Failed and reports false so
// the caller closes the connection after the flush.
func (c *connection) reject(ctx context.Context, q *query.Query) bool {
	c.srv.collector.ConnectionRejected("unauthorized")
	q.FailPending()
	c.flush(ctx, q)
	return false
}

// process runs one authorized frame through the whitelist and the queue
// and flushes the response. It reports whether the connection survives
// the exchange.
func (c *connection) process(ctx context.Context, q *query.Query) bool {
	op := q.Opcode()
	if !c.role.Allows(op) {
		logger.ErrorCtx(ctx, "Query not allowed for role",
			logger.Query(op.String()), logger.Role(c.role.String()))
		q.Failed()
		if !c.flush(ctx, q) {
			return false
		}
		// A game server survives a stray opcode; the other roles are
		// misbehaving badly enough to drop.
		return c.role == protocol.RoleGame
	}

	q.BindWorld(c.worldID)
	if !c.srv.queue.Enqueue(q) {
		q.FailPending()
		c.flush(ctx, q)
		return false
	}
	<-q.Done()

	if q.Status() == protocol.StatusFailed {
		logger.WarnCtx(ctx, "Query failed", logger.Query(op.String()))
	}

	ok := c.flush(ctx, q)
	q.Release()
	return ok
}

// flush writes the query's response frame to the socket. An overflowed
// response cannot be framed, so the connection is dropped rather than
// leaving the peer waiting on a reply that will never come.
func (c *connection) flush(ctx context.Context, q *query.Query) bool {
	resp, ok := q.Response()
	if !ok {
		logger.ErrorCtx(ctx, "Response overflowed the connection buffer",
			logger.Query(q.Opcode().String()))
		return false
	}
	if _, err := c.sock.Write(resp); err != nil {
		logger.WarnCtx(ctx, "Failed to write response", logger.Err(err))
		return false
	}
	return true
}

// logDisconnect classifies a read error for the log. Timeouts during
// shutdown are the deadline initiateShutdown planted, not inactivity.
func (c *connection) logDisconnect(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		logger.DebugCtx(ctx, "Connection closed by client")
	case errors.Is(err, protocol.ErrFrameSize):
		logger.ErrorCtx(ctx, "Dropping connection: invalid frame", logger.Err(err))
	case errors.Is(err, net.ErrClosed):
		logger.DebugCtx(ctx, "Connection closed")
	case isTimeout(err):
		select {
		case <-c.srv.shutdown:
			logger.DebugCtx(ctx, "Closing connection: shutdown in progress")
		default:
			logger.WarnCtx(ctx, "Dropping connection due to inactivity")
		}
	default:
		logger.ErrorCtx(ctx, "Failed to read query", logger.Err(err))
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
