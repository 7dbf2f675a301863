package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Config controls dispatcher buffering and batching behavior.
type Config struct {
	Enabled       bool
	BufferSize    int
	BatchSize     int           // events per flush; 0 = 32
	FlushInterval time.Duration // idle flush period; 0 = 5s
	DropIfFull    bool
	MaxPending    int // retained events across failed flushes; 0 = 4 * BatchSize
}

// Dispatcher asynchronously batches audit events toward a sink. Events at
// high or critical severity bypass batching and flush immediately; failed
// flushes keep their events queued for the next attempt, so delivery is
// at-least-once while the dispatcher lives.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher describes the newdispatcher operation and its observable behavior.
//
// NewDispatcher may return an error when input validation, dependency calls, or security checks fail.
// NewDispatcher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 4 * cfg.BatchSize
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

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	var pending []Event

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := d.sink.Write(context.Background(), pending); err != nil {
			// Failed delivery: retain for the next attempt, shedding the
			// oldest events past the retention cap.
			if over := len(pending) - d.cfg.MaxPending; over > 0 {
				d.dropped.Add(uint64(over))
				pending = pending[over:]
			}
			return
		}
		pending = pending[:0]
	}

	for {
		select {
		case event := <-d.ch:
			pending = append(pending, event)
			if event.Severity.AtLeast(SeverityHigh) || len(pending) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					pending = append(pending, event)
				default:
					// Final best-effort flush; anything the sink still
					// rejects is counted dropped.
					if err := d.sink.Write(context.Background(), pending); err != nil {
						d.dropped.Add(uint64(len(pending)))
					}
					return
				}
			}
		}
	}
}

// Emit sanitizes the event, assigns its ID, timestamp, and severity, and
// queues it for delivery. Never panics toward callers; a nil dispatcher
// drops silently.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityOf(event.EventType)
	}
	event = Sanitize(event)

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
	case <-d.done:
	}
}

// Close stops the dispatcher after a final best-effort drain.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
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

// Dropped reports how many events were shed due to backpressure or
// undeliverable flushes.
//
// Dropped may return an error when input validation, dependency calls, or security checks fail.
// Dropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
