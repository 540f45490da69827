package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/couchcryptid/safe-speed-service/internal/store"
)

// mutation is one unit of work against the kv table, run inside the write
// transaction the queue owns.
type mutation func(ctx context.Context, tx *sql.Tx) error

type pendingWrite struct {
	ctx    context.Context
	apply  mutation
	result chan error
}

// writeQueue funnels every Set, Update, and Remove through one goroutine, so
// read-modify-write mutations on a key run back to back and never contend for
// the SQLite write lock.
type writeQueue struct {
	db      *sql.DB
	pending chan pendingWrite
	drained chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newWriteQueue(db *sql.DB, depth int) *writeQueue {
	q := &writeQueue{
		db:      db,
		pending: make(chan pendingWrite, depth),
		drained: make(chan struct{}),
	}
	go q.serve()
	return q
}

// submit queues m and waits for its commit. If ctx ends first submit returns
// ctx.Err(), but an already queued mutation still runs to completion.
func (q *writeQueue) submit(ctx context.Context, m mutation) error {
	// Held until the result arrives so stop cannot close pending under us.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return store.ErrClosed
	}

	w := pendingWrite{ctx: ctx, apply: m, result: make(chan error, 1)}
	select {
	case q.pending <- w:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop rejects new mutations, waits for queued ones to commit, and reports
// whether this call was the one that stopped the queue.
func (q *writeQueue) stop() bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.closed = true
	close(q.pending)
	q.mu.Unlock()

	<-q.drained
	return true
}

func (q *writeQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *writeQueue) serve() {
	defer close(q.drained)
	for w := range q.pending {
		w.result <- q.commit(w)
	}
}

func (q *writeQueue) commit(w pendingWrite) error {
	tx, err := q.db.BeginTx(w.ctx, nil)
	if err != nil {
		return err
	}
	if err := w.apply(w.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
