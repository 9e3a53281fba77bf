package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how the dispatcher queues events ahead of the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events that find the queue full instead of making
	// the request wait. Types listed in Retain are never discarded.
	DropIfFull bool
	// Retain names event types that wait for queue space even when
	// DropIfFull is set. Credential changes belong here.
	Retain []string
	// OnDrop is called on the emitting goroutine for every discarded event.
	OnDrop func(Event)
}

// Dispatcher hands events from request goroutines to a single sink
// goroutine.
//
// Emit after Close is a no-op. Close delivers whatever is queued before it
// returns.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	retain     map[string]struct{}
	onDrop     func(Event)

	// mu guards closed and the send side of queue.
	mu     sync.RWMutex
	closed bool
	queue  chan Event
	idle   chan struct{}

	dropped atomic.Uint64
	byType  sync.Map // event type -> *atomic.Uint64
}

// NewDispatcher starts the sink goroutine. It returns nil when cfg is
// disabled; a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		queue:      make(chan Event, cfg.BufferSize),
		idle:       make(chan struct{}),
	}
	if len(cfg.Retain) > 0 {
		d.retain = make(map[string]struct{}, len(cfg.Retain))
		for _, typ := range cfg.Retain {
			d.retain[typ] = struct{}{}
		}
	}

	go d.forward()
	return d
}

func (d *Dispatcher) forward() {
	defer close(d.idle)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
	}
}

// Emit queues ev. When the queue is full ev is either dropped or waited on,
// depending on DropIfFull and Retain; a wait ends early if ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
		return
	default:
	}

	if d.dropIfFull && !d.retained(ev.Type) {
		d.drop(ev)
		return
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev)
	}
}

func (d *Dispatcher) retained(typ string) bool {
	_, ok := d.retain[typ]
	return ok
}

func (d *Dispatcher) drop(ev Event) {
	d.dropped.Add(1)
	counter, _ := d.byType.LoadOrStore(ev.Type, new(atomic.Uint64))
	counter.(*atomic.Uint64).Add(1)
	if d.onDrop != nil {
		d.onDrop(ev)
	}
}

// Close stops accepting events and waits until the sink has seen every
// queued one.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

// Dropped reports the number of discarded events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType reports discarded events per event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.byType.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}
