package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskforge.org/internal/authz"
)

var (
	ErrNotFound     = errors.New("tracker: not found")
	ErrForbidden    = errors.New("tracker: forbidden")
	ErrInvalidInput = errors.New("tracker: invalid input")
)

// forbidden wraps a denial so callers can map it while audit logs keep the
// rule-level reason.
func forbidden(d authz.Decision) error {
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project groups tasks under a single immutable owner plus a member set.
// The owner is added to the member set at creation time.
type Project struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	OwnerID     string              `json:"owner_id"`
	Members     map[string]struct{} `json:"-"`
	Status      ProjectStatus       `json:"status"`
	CachedStats string              `json:"cached_stats,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ArchivedAt  time.Time           `json:"archived_at,omitempty"`
}

// Snapshot reduces the project to what the permission evaluator needs.
func (p *Project) Snapshot() authz.ProjectSnapshot {
	members := make(map[string]struct{}, len(p.Members))
	for id := range p.Members {
		members[id] = struct{}{}
	}
	return authz.ProjectSnapshot{ID: p.ID, OwnerID: p.OwnerID, Members: members}
}

// MemberIDs returns the member set as a sorted-insensitive slice for
// serialization.
func (p *Project) MemberIDs() []string {
	out := make([]string, 0, len(p.Members))
	for id := range p.Members {
		out = append(out, id)
	}
	return out
}

// Clone returns a deep copy safe to hand to callers and caches.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Members = make(map[string]struct{}, len(p.Members))
	for id := range p.Members {
		cp.Members[id] = struct{}{}
	}
	return &cp
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

var taskStatuses = map[TaskStatus]struct{}{
	TaskTodo: {}, TaskInProgress: {}, TaskInReview: {}, TaskCompleted: {}, TaskCancelled: {},
}

// ParseTaskStatus normalizes and validates a status string.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := taskStatuses[st]; !ok {
		return "", fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

var taskPriorities = map[TaskPriority]struct{}{
	PriorityLow: {}, PriorityMedium: {}, PriorityHigh: {}, PriorityUrgent: {},
}

// ParseTaskPriority normalizes and validates a priority string.
func ParseTaskPriority(s string) (TaskPriority, error) {
	p := TaskPriority(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := taskPriorities[p]; !ok {
		return "", fmt.Errorf("%w: unsupported priority %q", ErrInvalidInput, s)
	}
	return p, nil
}

// StatusChange is an append-only history entry. Concurrent transitions may
// append duplicates; the history is a log, not a state machine.
type StatusChange struct {
	Status    TaskStatus `json:"status"`
	ChangedAt time.Time  `json:"changed_at"`
	ChangedBy string     `json:"changed_by"`
}

// Task is a unit of work inside a project.
type Task struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        TaskStatus     `json:"status"`
	Priority      TaskPriority   `json:"priority"`
	AssigneeID    string         `json:"assignee_id,omitempty"`
	DueDate       time.Time      `json:"due_date,omitempty"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
	StatusHistory []StatusChange `json:"status_history,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a copy safe to hand to callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.StatusHistory = append([]StatusChange(nil), t.StatusHistory...)
	return &cp
}

// Comment is a soft-deleted note on a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand to callers.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Stats is the derived read-only view of a project's task counts.
type Stats struct {
	ProjectID  string `json:"project_id"`
	Total      int    `json:"total"`
	Todo       int    `json:"todo"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
}

// Summary renders the stats line persisted on the project record.
func (s Stats) Summary() string {
	return fmt.Sprintf("Total: %d, TODO: %d, In Progress: %d, Completed: %d",
		s.Total, s.Todo, s.InProgress, s.Completed)
}
