package notify

import (
	"context"
	"sync"
	"time"

	"taskforge.org/internal/obs"
)

// Job is a unit of best-effort background work. Errors are logged, never
// propagated: nothing on a mutation's success path may depend on a job.
type Job func(ctx context.Context) error

// Event is a notification destined for a recipient. Delivery is a stub;
// the fields are logged by LogSender until a real channel exists.
type Event struct {
	Kind      string
	Recipient string
	Fields    map[string]any
}

// Sender delivers events.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// LogSender writes events as structured log lines. Stands in for email
// delivery, which is out of scope.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, ev Event) error {
	entry := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"type":      "notification",
		"event":     ev.Kind,
		"recipient": ev.Recipient,
	}
	if len(ev.Fields) > 0 {
		entry["fields"] = ev.Fields
	}
	obs.LogEvent(entry)
	return nil
}

// Dispatcher runs jobs on a fixed worker pool fed by a bounded channel.
// Enqueue never blocks the caller: when the buffer is full the job is
// dropped and the drop is logged.
type Dispatcher struct {
	jobs    chan Job
	workers int

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given pool size and buffer.
func NewDispatcher(workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		jobs:    make(chan Job, buffer),
		workers: workers,
	}
}

// Start launches the worker pool. Workers drain the queue until Stop is
// called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				for {
					select {
					case job, ok := <-d.jobs:
						if !ok {
							return
						}
						d.run(ctx, job)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	})
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			obs.Error("background job panicked", map[string]any{"panic": r})
		}
	}()
	if err := job(ctx); err != nil {
		obs.Error("background job failed", map[string]any{"error": err.Error()})
	}
}

// Enqueue hands a job to the pool. Returns false if the job was dropped.
func (d *Dispatcher) Enqueue(job Job) bool {
	if d == nil || job == nil {
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		obs.Warn("background queue full, job dropped", nil)
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}

// Notifier couples a dispatcher with a sender and is what domain services
// hold. A nil Notifier drops everything, so wiring stays optional.
type Notifier struct {
	d *Dispatcher
	s Sender
}

// NewNotifier builds a notifier over the shared dispatcher.
func NewNotifier(d *Dispatcher, s Sender) *Notifier {
	if s == nil {
		s = LogSender{}
	}
	return &Notifier{d: d, s: s}
}

// Emit queues a notification for delivery.
func (n *Notifier) Emit(kind, recipient string, fields map[string]any) {
	if n == nil || n.d == nil {
		return
	}
	ev := Event{Kind: kind, Recipient: recipient, Fields: fields}
	n.d.Enqueue(func(ctx context.Context) error {
		return n.s.Send(ctx, ev)
	})
}

// Async queues arbitrary best-effort work, e.g. deferred cache eviction.
func (n *Notifier) Async(job Job) bool {
	if n == nil || n.d == nil {
		return false
	}
	return n.d.Enqueue(job)
}
