// Package engine turns user intent into operations, applies them to the
// local projection synchronously, and drives their eventual delivery to the
// authority. One session owns one aggregate; all local mutation is
// serialized through the session while network delivery runs on the
// dispatcher loop.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/idempotency"
	"example.com/syncengine/internal/journal"
)

// pendingOp is one enqueued operation awaiting acknowledgment. submit
// performs the network call and folds the authoritative response back into
// the projection before returning.
type pendingOp struct {
	key      string
	kind     string
	entityID string
	submit   func(context.Context) error
}

// dispatcher owns the FIFO pending queue shared by both session kinds.
// Operations are applied locally in strict call order; delivery preserves
// that order per entity because the queue is drained head-first and an
// in-flight head blocks concurrent drains via the key store.
type dispatcher struct {
	entityLabel string
	keys        *idempotency.Keys
	journal     *journal.Journal
	notify      *notifier
	logger      *log.Logger

	mu    sync.Mutex
	queue []*pendingOp
	kick  chan struct{}
}

func newDispatcher(entityLabel string, keys *idempotency.Keys, jnl *journal.Journal, notify *notifier, logger *log.Logger) *dispatcher {
	return &dispatcher{
		entityLabel: entityLabel,
		keys:        keys,
		journal:     jnl,
		notify:      notify,
		logger:      logger,
		kick:        make(chan struct{}, 1),
	}
}

// enqueue appends an operation and wakes the run loop. The journal write is
// advisory: a failure is logged, never propagated.
func (d *dispatcher) enqueue(ctx context.Context, op *pendingOp, payload []byte) {
	d.mu.Lock()
	d.queue = append(d.queue, op)
	depth := len(d.queue)
	d.mu.Unlock()

	pendingDepth.WithLabelValues(d.entityLabel).Set(float64(depth))
	operationsEnqueued.WithLabelValues(op.kind).Inc()

	if err := d.journal.Record(ctx, op.entityID, op.kind, op.key, payload); err != nil {
		d.logger.Printf("journal record failed for %s: %v", op.key, err)
	}

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Pending reports how many operations await acknowledgment.
func (d *dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// SyncOnce drains the queue head-first until it is empty, an operation fails
// transiently, or another drain holds the head. Terminal rejections drop the
// operation and continue; transient failures leave it queued and return.
func (d *dispatcher) SyncOnce(ctx context.Context) error {
	_, err := d.syncOnce(ctx)
	return err
}

// Flush drains until the queue is actually empty, waiting out operations
// claimed by a concurrent drain. Callers that must observe full delivery
// (session completion) use this instead of SyncOnce.
func (d *dispatcher) Flush(ctx context.Context) error {
	for {
		drained, err := d.syncOnce(ctx)
		if err != nil {
			return err
		}
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// syncOnce reports whether the queue was fully drained; false means the head
// is claimed by another drain and may still be in flight.
func (d *dispatcher) syncOnce(ctx context.Context) (bool, error) {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return true, nil
		}
		entry := d.queue[0]
		d.mu.Unlock()

		// Atomic check-and-set: a concurrent drain that already claimed this
		// key owns the submission, so this drain backs off.
		if d.keys.SeenOrRemember(entry.key) {
			return false, nil
		}

		err := entry.submit(ctx)
		switch {
		case err == nil:
			d.remove(entry)
			if jerr := d.journal.MarkAcknowledged(ctx, entry.key); jerr != nil {
				d.logger.Printf("journal ack failed for %s: %v", entry.key, jerr)
			}
			d.notify.publish(ChangeEvent{EntityID: entry.entityID, Kind: EventSynced, IdempotencyKey: entry.key})

		case api.IsRejected(err):
			// Terminal: the request itself is malformed or refused. The
			// operation leaves the queue; local optimistic state stays.
			d.remove(entry)
			kind := EventRejected
			if api.IsConflict(err) {
				kind = EventConflict
			}
			if jerr := d.journal.MarkFailed(ctx, entry.key, err.Error()); jerr != nil {
				d.logger.Printf("journal fail-mark failed for %s: %v", entry.key, jerr)
			}
			d.logger.Printf("operation %s rejected: %v", entry.key, err)
			d.notify.publish(ChangeEvent{EntityID: entry.entityID, Kind: kind, IdempotencyKey: entry.key, Err: err})

		default:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.keys.Forget(entry.key)
				return false, err
			}
			// Transient: keep the operation queued under its original key so
			// a later cycle retries the same intent.
			d.keys.Forget(entry.key)
			d.logger.Printf("operation %s sync pending: %v", entry.key, err)
			d.notify.publish(ChangeEvent{EntityID: entry.entityID, Kind: EventSyncFailed, IdempotencyKey: entry.key, Err: err})
			return false, err
		}
	}
}

// Run drains the queue until the context is cancelled, waking on enqueue and
// on a steady poll tick. It should be called in a goroutine.
func (d *dispatcher) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if err := d.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("sync cycle: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-d.kick:
		case <-ticker.C:
		}
	}
}

func (d *dispatcher) remove(entry *pendingOp) {
	d.mu.Lock()
	for idx, queued := range d.queue {
		if queued == entry {
			d.queue = append(d.queue[:idx], d.queue[idx+1:]...)
			break
		}
	}
	depth := len(d.queue)
	d.mu.Unlock()
	pendingDepth.WithLabelValues(d.entityLabel).Set(float64(depth))
}
