package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDropped is returned when the dispatcher buffer is full.
var ErrDropped = errors.New("audit buffer full, event dropped")

// Dispatcher moves sink writes off the request path. Events are queued in a
// bounded buffer and drained by one worker; a full buffer drops the event.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the worker. timeout bounds each downstream write.
func NewDispatcher(sink Sink, buffer int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Emit(ctx, e); err != nil {
		d.logger.Warn("audit sink write failed", slog.String("event_type", e.EventType), slog.Any("error", err))
	}
}

// Emit enqueues e without blocking.
func (d *Dispatcher) Emit(_ context.Context, e Event) error {
	if d.closed.Load() {
		return ErrDropped
	}
	select {
	case d.ch <- e:
		return nil
	default:
		d.dropped.Add(1)
		return ErrDropped
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
