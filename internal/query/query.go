// Package query defines the unit of work exchanged between connections and
// the worker pool: a query object owning one request/response buffer, plus
// the bounded queue the workers drain.
//
// A query is shared by exactly two parties. The connection that read the
// request holds one reference from creation; enqueueing hands a second
// reference to the worker pool. The worker's release closes the Done
// channel, which is the connection's signal that the response buffer is
// ready to flush. The connection's own release drops the count to zero,
// after which the buffer may be reused for the next frame.
package query

import (
	"context"
	"sync/atomic"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/protocol"
)

// Query carries one request through the worker pool and the response back.
//
// The request and the response share one buffer: handlers must finish
// decoding the request before they begin a response, because Begin starts
// overwriting the buffer from the front.
type Query struct {
	opcode protocol.Opcode

	// buf is the connection's frame buffer. The request payload occupies
	// buf[:requestSize]; the response is assembled over the same bytes.
	buf         []byte
	requestSize int

	w      protocol.WriteBuffer
	status protocol.Status

	// worldID is stamped by the connection during authorization and scopes
	// every game query to the connection's world.
	worldID int

	ctx  context.Context
	refs atomic.Int32
	done chan struct{}
}

// New wraps a request payload occupying buf[:requestSize]. The first payload
// byte is the opcode. The caller holds the initial reference.
func New(ctx context.Context, buf []byte, requestSize int) *Query {
	q := &Query{
		buf:         buf,
		requestSize: requestSize,
		status:      protocol.StatusPending,
		ctx:         ctx,
		done:        make(chan struct{}),
	}
	if requestSize > 0 {
		q.opcode = protocol.Opcode(buf[0])
	}
	q.refs.Store(1)
	return q
}

// Opcode returns the request's first payload byte.
func (q *Query) Opcode() protocol.Opcode {
	return q.opcode
}

// Status returns the query status. Safe to read once Done is closed or
// before the query is enqueued.
func (q *Query) Status() protocol.Status {
	return q.status
}

// Context returns the connection-scoped context the query was created with.
func (q *Query) Context() context.Context {
	return q.ctx
}

// WorldID returns the world the owning connection is bound to, or zero for
// login and web connections.
func (q *Query) WorldID() int {
	return q.worldID
}

// BindWorld scopes the query to a world. Called by the connection before
// enqueueing, never concurrently with execution.
func (q *Query) BindWorld(id int) {
	q.worldID = id
}

// Done is closed when the worker releases its reference, meaning the
// response buffer is complete and safe to read.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Refs returns the current reference count.
func (q *Query) Refs() int32 {
	return q.refs.Load()
}

// acquire takes the worker pool's reference. It fails when the count is not
// exactly one, which would mean the query is already queued or running.
func (q *Query) acquire() bool {
	return q.refs.CompareAndSwap(1, 2)
}

// Release drops one reference. The drop from two to one closes Done; the
// drop from one to zero ends the query's life. Releasing below zero panics,
// as it means a double release.
func (q *Query) Release() {
	switch n := q.refs.Add(-1); n {
	case 1:
		close(q.done)
	case 0:
	default:
		if n < 0 {
			panic("query: released more references than acquired")
		}
	}
}

// Request returns a reader over the request payload positioned past the
// opcode byte.
func (q *Query) Request() *protocol.ReadBuffer {
	r := protocol.NewReadBuffer(q.buf[:q.requestSize])
	r.Read8()
	return r
}

// Begin starts a response with the given status, resetting the write cursor
// over the full buffer. The first two bytes hold a placeholder for the
// length prefix that Finish patches in.
func (q *Query) Begin(status protocol.Status) *protocol.WriteBuffer {
	q.status = status
	q.w = *protocol.NewWriteBuffer(q.buf)
	q.w.Write16(0)
	q.w.Write8(uint8(status))
	return &q.w
}

// Finish patches the length prefix over the placeholder Begin wrote and
// reports whether the response fit the buffer. Responses of 64KB or more
// use the extended prefix, shifting the payload up four bytes.
func (q *Query) Finish() bool {
	pos := q.w.Position()
	if pos <= 2 {
		logger.ErrorCtx(q.ctx, "Invalid response size",
			logger.Query(q.opcode.String()))
		q.status = protocol.StatusFailed
		return false
	}

	payload := pos - 2
	if payload < 0xFFFF {
		q.w.Rewrite16(0, uint16(payload))
	} else {
		q.w.Rewrite16(0, 0xFFFF)
		q.w.Insert32(2, uint32(payload))
	}
	return !q.w.Overflowed()
}

// Ok writes a bodyless success response.
func (q *Query) Ok() bool {
	q.Begin(protocol.StatusOK)
	return q.Finish()
}

// Error writes a refusal response carrying an operation-specific code.
func (q *Query) Error(code uint8) bool {
	w := q.Begin(protocol.StatusError)
	w.Write8(code)
	return q.Finish()
}

// Failed writes a bodyless failure response.
func (q *Query) Failed() bool {
	q.Begin(protocol.StatusFailed)
	return q.Finish()
}

// FailPending writes a failure response if no handler produced one. Called
// by the connection before flushing, so an unknown opcode or a crashed
// handler still answers the client.
func (q *Query) FailPending() {
	if q.status == protocol.StatusPending {
		q.Failed()
	}
}

// Response returns the assembled response frame, or false when the
// response overflowed the buffer and the connection must be dropped.
func (q *Query) Response() ([]byte, bool) {
	if q.w.Overflowed() {
		return nil, false
	}
	return q.w.Bytes(), true
}
