package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each Sink.Emit call made by the worker. Zero means
	// no deadline.
	SinkTimeout time.Duration
}

// Dispatcher asynchronously forwards audit events to a sink from a single
// worker goroutine, so events reach the sink in emission order.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the worker. It returns nil when cfg.Enabled is false;
// every method is safe on a nil Dispatcher.
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
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx := context.Background()
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull it never blocks and counts the drop;
// otherwise it waits for buffer space, ctx cancellation or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events, drains the buffer and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events discarded due to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
