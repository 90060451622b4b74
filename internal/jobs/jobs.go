// Package jobs runs the periodic maintenance loops: overdue-task
// notifications and bounded-staleness eviction of cached project stats.
package jobs

import (
	"context"
	"time"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/notify"
	"taskforge.org/internal/obs"
	"taskforge.org/internal/tracker"
)

const (
	defaultOverdueInterval = 15 * time.Minute
	defaultStatsInterval   = 5 * time.Minute
)

// TaskSource is the slice of the tracker the runner reads.
type TaskSource interface {
	ListOverdue(ctx context.Context, now time.Time) ([]*tracker.Task, error)
}

// Runner drives the periodic loops. It notifies assignees about overdue
// tasks at most once per due date and keeps stats staleness bounded by
// evicting the stats namespace on a timer.
type Runner struct {
	tasks    TaskSource
	notifier *notify.Notifier
	cache    *cache.Cache
	now      func() time.Time

	overdueEvery time.Duration
	statsEvery   time.Duration

	notified map[string]time.Time
}

// Option configures Runner behavior.
type Option func(*Runner)

// WithOverdueInterval sets the overdue scan period.
func WithOverdueInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.overdueEvery = d
		}
	}
}

// WithStatsInterval sets the stats eviction period.
func WithStatsInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.statsEvery = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRunner constructs the runner.
func NewRunner(tasks TaskSource, n *notify.Notifier, c *cache.Cache, opts ...Option) *Runner {
	r := &Runner{
		tasks:        tasks,
		notifier:     n,
		cache:        c,
		now:          time.Now,
		overdueEvery: defaultOverdueInterval,
		statsEvery:   defaultStatsInterval,
		notified:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is cancelled, firing both loops on their timers.
func (r *Runner) Run(ctx context.Context) {
	overdue := time.NewTicker(r.overdueEvery)
	defer overdue.Stop()
	stats := time.NewTicker(r.statsEvery)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-overdue.C:
			r.scanOverdue(ctx)
		case <-stats.C:
			r.refreshStats()
		}
	}
}

// scanOverdue notifies each overdue task's assignee. A task is reported
// once per due date: pushing the date out re-arms the notification.
func (r *Runner) scanOverdue(ctx context.Context) {
	tasks, err := r.tasks.ListOverdue(ctx, r.now().UTC())
	if err != nil {
		obs.Error("overdue scan failed", map[string]any{"error": err.Error()})
		return
	}
	// Drop dedupe entries for tasks no longer overdue (completed, cancelled
	// or rescheduled) so the map cannot grow without bound.
	current := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		current[t.ID] = struct{}{}
	}
	for id := range r.notified {
		if _, ok := current[id]; !ok {
			delete(r.notified, id)
		}
	}

	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		if due, ok := r.notified[t.ID]; ok && due.Equal(t.DueDate) {
			continue
		}
		r.notified[t.ID] = t.DueDate
		r.notifier.Emit("task.overdue", t.AssigneeID, map[string]any{
			"task_id":  t.ID,
			"title":    t.Title,
			"due_date": t.DueDate.Format(time.RFC3339),
		})
	}
}

// refreshStats drops all cached stats so the next read recomputes them.
func (r *Runner) refreshStats() {
	r.cache.EvictAll(tracker.NamespaceProjectStats)
}
