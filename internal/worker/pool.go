// Package worker runs the pool of database sessions that drain the query
// queue. Each worker owns one session for its lifetime; the pool size is
// the configured thread count capped by the backend's concurrency limit,
// so a SQLite deployment always runs exactly one worker.
//
// Startup blocks until every worker holds an open session. A worker that
// cannot open one fails startup outright, so a misconfigured database is
// caught before the listener accepts anything.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/metrics"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/config"
	"github.com/openmmo/querymanager/pkg/database"
)

// Handler executes one query against a worker's session.
type Handler = func(ctx context.Context, s *database.Session, q *query.Query)

// Dispatcher resolves opcodes to handlers. A nil handler means the opcode
// is unknown; the query fails without touching the database.
type Dispatcher interface {
	Lookup(op protocol.Opcode) Handler
}

// Worker lifecycle states the startup gate distinguishes.
const (
	workerSpawning int32 = iota
	workerActive
	workerDone
)

// startupPollInterval is how often Start re-examines worker states while
// any session is still opening.
const startupPollInterval = 500 * time.Millisecond

// Pool owns the worker goroutines and the retry policy they apply.
type Pool struct {
	db          *database.Database
	queue       *query.Queue
	dispatch    Dispatcher
	collector   *metrics.Collector
	maxAttempts int

	statuses []atomic.Int32
	stop     atomic.Bool
	wg       sync.WaitGroup

	pollInterval time.Duration
}

// NewPool sizes a pool for the configured thread count and backend.
func NewPool(db *database.Database, queue *query.Queue, dispatch Dispatcher,
	collector *metrics.Collector, cfg config.ServerConfig) *Pool {
	size := cfg.WorkerThreads
	if size < 1 {
		size = 1
	}
	if limit := db.MaxConcurrency(); limit > 0 && size > limit {
		size = limit
	}

	return &Pool{
		db:           db,
		queue:        queue,
		dispatch:     dispatch,
		collector:    collector,
		maxAttempts:  cfg.MaxAttempts,
		statuses:     make([]atomic.Int32, size),
		pollInterval: startupPollInterval,
	}
}

// Size returns the effective number of workers.
func (p *Pool) Size() int {
	return len(p.statuses)
}

// Start launches the workers and blocks until each has opened its database
// session. A worker finishing during startup is an initialization failure.
func (p *Pool) Start(ctx context.Context) error {
	for i := range p.statuses {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	for {
		spawning, active, done := p.census()
		if spawning > 0 {
			logger.Info("Waiting on worker threads...",
				slog.Int("spawning", spawning),
				slog.Int("active", active),
				slog.Int("done", done))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pollInterval):
			}
			continue
		}
		if done > 0 {
			return fmt.Errorf("%d worker thread(s) failed to initialize", done)
		}
		return nil
	}
}

// Shutdown stops the queue, fails whatever is still queued, and waits for
// every worker to finish its in-flight query and close its session.
func (p *Pool) Shutdown() {
	p.stop.Store(true)
	p.queue.Stop()
	p.wg.Wait()
}

func (p *Pool) census() (spawning, active, done int) {
	for i := range p.statuses {
		switch p.statuses[i].Load() {
		case workerSpawning:
			spawning++
		case workerActive:
			active++
		case workerDone:
			done++
		}
	}
	return spawning, active, done
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	if p.stop.Load() {
		logger.Warn("Worker stopping on entry", logger.Worker(id))
		p.statuses[id].Store(workerDone)
		return
	}

	session, err := p.db.NewSession(ctx)
	if err != nil {
		logger.Error("Worker failed to connect to database",
			logger.Worker(id), logger.Err(err))
		p.statuses[id].Store(workerDone)
		return
	}

	logger.Info("Worker active", logger.Worker(id))
	p.statuses[id].Store(workerActive)

	for {
		q := p.queue.Dequeue()
		if q == nil {
			break
		}
		p.process(session, q, id)
	}

	logger.Info("Worker done", logger.Worker(id))
	// The pool context is usually canceled by the time a worker exits;
	// session teardown still needs a live one.
	session.Close(context.Background())
	p.statuses[id].Store(workerDone)
}

// process runs one query to completion and releases the pool's reference,
// which hands the response back to the owning connection.
func (p *Pool) process(s *database.Session, q *query.Query, id int) {
	start := time.Now()
	ctx := q.Context()

	// Unknown opcodes skip execution entirely and fall through to Failed.
	handler := p.dispatch.Lookup(q.Opcode())
	if handler != nil && s.Checkpoint(ctx) {
		for attempt := 1; ; attempt++ {
			handler(ctx, s, q)
			if q.Status() != protocol.StatusPending || attempt >= p.maxAttempts || !s.Checkpoint(ctx) {
				break
			}
			p.collector.QueryRetried()
			logger.WarnCtx(ctx, "Query failed, retrying...",
				logger.Worker(id),
				logger.Query(q.Opcode().String()),
				logger.Attempt(attempt),
				logger.MaxAttempts(p.maxAttempts))
		}
	}

	q.FailPending()

	p.collector.QueryProcessed(q.Opcode().String(), q.Status().String(),
		time.Since(start).Seconds())
	p.collector.SetQueueDepth(p.queue.Len())
	q.Release()
}
