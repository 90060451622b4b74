package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/notify"
	"taskforge.org/internal/tracker"
)

// captureSender records delivered events.
type captureSender struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSender) Send(ctx context.Context, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureSender) at(i int) notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}

func waitForCount(t *testing.T, c *captureSender, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %d", want, c.count())
}

func TestScanOverdueNotifiesOncePerDueDate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := tracker.NewInMemory()
	due := now.Add(-time.Hour)
	task := &tracker.Task{
		ID: "t1", ProjectID: "p1", Title: "late", Status: tracker.TaskTodo,
		Priority: tracker.PriorityHigh, AssigneeID: "alice", DueDate: due, Version: 1,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	// Overdue but unassigned: nobody to notify.
	orphan := &tracker.Task{
		ID: "t2", ProjectID: "p1", Title: "orphan", Status: tracker.TaskTodo,
		Priority: tracker.PriorityLow, DueDate: due, Version: 1,
	}
	if err := store.CreateTask(context.Background(), orphan); err != nil {
		t.Fatal(err)
	}

	sender := &captureSender{}
	d := notify.NewDispatcher(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	r := NewRunner(store.Tasks(), notify.NewNotifier(d, sender), cache.New(16),
		WithClock(func() time.Time { return now }))

	r.scanOverdue(ctx)
	waitForCount(t, sender, 1)
	if ev := sender.at(0); ev.Kind != "task.overdue" || ev.Recipient != "alice" {
		t.Fatalf("unexpected event: %#v", ev)
	}

	// A second scan with the same due date stays quiet.
	r.scanOverdue(ctx)
	time.Sleep(50 * time.Millisecond)
	if sender.count() != 1 {
		t.Fatalf("duplicate notification: %d events", sender.count())
	}

	// Pushing the due date out (still in the past) re-arms it.
	task.DueDate = due.Add(time.Minute)
	if err := store.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	r.scanOverdue(ctx)
	waitForCount(t, sender, 2)
}

func TestScanOverduePrunesResolvedTasks(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := tracker.NewInMemory()
	task := &tracker.Task{
		ID: "t1", ProjectID: "p1", Title: "late", Status: tracker.TaskTodo,
		Priority: tracker.PriorityMedium, AssigneeID: "alice",
		DueDate: now.Add(-time.Hour), Version: 1,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	sender := &captureSender{}
	d := notify.NewDispatcher(1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	r := NewRunner(store.Tasks(), notify.NewNotifier(d, sender), cache.New(16),
		WithClock(func() time.Time { return now }))

	r.scanOverdue(ctx)
	waitForCount(t, sender, 1)
	if _, ok := r.notified["t1"]; !ok {
		t.Fatal("scan must record the notified task")
	}

	// Completing the task removes it from the overdue set; the next scan
	// drops its dedupe entry instead of keeping it forever.
	task.Status = tracker.TaskCompleted
	if err := store.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	r.scanOverdue(ctx)
	if _, ok := r.notified["t1"]; ok {
		t.Fatal("resolved task must be pruned from the dedupe map")
	}
	if sender.count() != 1 {
		t.Fatalf("pruning must not re-notify: %d events", sender.count())
	}
}

func TestRefreshStatsEvictsNamespace(t *testing.T) {
	c := cache.New(16)
	c.Put(tracker.NamespaceProjectStats, "p1", tracker.Stats{ProjectID: "p1", Total: 3})
	c.Put(tracker.NamespaceProjects, "p1", "keep")

	r := NewRunner(tracker.NewInMemory().Tasks(), nil, c)
	r.refreshStats()

	if _, ok := c.Get(tracker.NamespaceProjectStats, "p1"); ok {
		t.Fatal("stats entry must be gone")
	}
	if _, ok := c.Get(tracker.NamespaceProjects, "p1"); !ok {
		t.Fatal("project namespace must be untouched")
	}
}
