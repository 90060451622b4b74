package tracker

import (
	"context"
	"time"
)

// ProjectStore persists projects and their member sets.
type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	Update(ctx context.Context, p *Project) error
	Find(ctx context.Context, id string) (*Project, error)
	ListByUser(ctx context.Context, userID string) ([]*Project, error)
}

// TaskStore persists tasks and their status history.
type TaskStore interface {
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	Find(ctx context.Context, id string) (*Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*Task, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*Task, error)
}

// CommentStore persists comments; deletion is a soft flag and reads filter
// deleted rows out.
type CommentStore interface {
	Create(ctx context.Context, c *Comment) error
	Update(ctx context.Context, c *Comment) error
	Find(ctx context.Context, id string) (*Comment, error)
	ListActiveByTask(ctx context.Context, taskID string) ([]*Comment, error)
}
