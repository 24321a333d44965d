package contestauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events off the request path to a single worker that
// feeds the sink. A nil dispatcher drops everything silently.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	mu      sync.RWMutex // guards queue against send-after-close
	queue   chan AuditEvent
	stopped bool

	worker  sync.WaitGroup
	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
	}
	d.worker.Add(1)
	go func() {
		defer d.worker.Done()
		// Ranging until close delivers whatever was queued before Close.
		for event := range d.queue {
			d.sink.Emit(context.Background(), event)
		}
	}()
	return d
}

// Emit queues event. With dropIfFull a full queue counts a drop instead of
// blocking; otherwise Emit waits for room or for ctx.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close flushes queued events to the sink and stops the worker. Later Emits
// are ignored.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.worker.Wait()
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
