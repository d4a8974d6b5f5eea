package authgate

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands audit events to a single delivery goroutine so that
// a slow sink never sits on the login or refresh path.
//
// Lifecycle: Emit may run from any goroutine until Close. Close refuses new
// events, lets the goroutine deliver whatever is still queued, and returns once
// the queue is empty. Events that never reach the queue are counted in Dropped.
type auditDispatcher struct {
	cfg  AuditConfig
	sink AuditSink

	queue    chan AuditEvent
	stopping chan struct{} // closed first by Close to release blocked emitters
	finished chan struct{} // closed by the delivery goroutine on exit

	// mu orders sends against close(queue): emitters hold it shared.
	mu   sync.RWMutex
	shut bool

	once    sync.Once
	dropped atomic.Uint64
}

// newAuditDispatcher returns nil when auditing is disabled; a nil dispatcher
// accepts and discards every call.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &auditDispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan AuditEvent, size),
		stopping: make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.deliverAll()
	return d
}

// deliverAll exits once Close has closed the queue and it is empty.
func (d *auditDispatcher) deliverAll() {
	defer close(d.finished)
	for event := range d.queue {
		d.deliverOne(event)
	}
}

func (d *auditDispatcher) deliverOne(event AuditEvent) {
	ctx := context.Background()
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, event)
}

// Emit queues event for delivery. With DropIfFull a full queue drops the event
// at once. Without it Emit waits for room, giving up (and counting a drop) when
// ctx ends, or silently when the dispatcher is closing.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shut {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stopping:
	}
}

// Close is idempotent. It blocks until every queued event has been handed to
// the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.stopping)

		d.mu.Lock()
		d.shut = true
		close(d.queue)
		d.mu.Unlock()

		<-d.finished
	})
}

// Dropped reports how many events were never queued.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
