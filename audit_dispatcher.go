package goSession

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
)

// auditDispatcher queues events for a single worker that feeds the sink.
//
// Events that end a session are never dropped: when the queue is full, or
// the caller stops waiting, they go to the sink on the calling goroutine.
// Other events wait for space, or with DropIfFull are dropped and counted
// by event type.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool

	stop     chan struct{}
	worker   sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once

	dropped atomic.Uint64
	dropsMu sync.Mutex
	drops   map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		dropIfFull: cfg.DropIfFull,
		stop:       make(chan struct{}),
		drops:      make(map[string]uint64),
	}
	d.worker.Add(1)
	go d.drain()
	return d
}

// endsSession reports whether losing event would hide a session ending.
func endsSession(eventType string) bool {
	switch eventType {
	case auditEventLogout, auditEventSessionInvalidated:
		return true
	}
	return false
}

func (d *auditDispatcher) drain() {
	defer d.worker.Done()

	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case d.queue <- event:
		return
	case <-d.stop:
		return
	default:
	}

	if endsSession(event.EventType) {
		d.sink.Emit(context.WithoutCancel(ctx), event)
		return
	}
	if d.dropIfFull {
		d.drop(event.EventType)
		return
	}

	select {
	case d.queue <- event:
	case <-d.stop:
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

func (d *auditDispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.dropsMu.Lock()
	d.drops[eventType]++
	d.dropsMu.Unlock()
}

// Close delivers what is queued and stops the worker. Safe to call twice.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.dropsMu.Lock()
	defer d.dropsMu.Unlock()
	return maps.Clone(d.drops)
}
