package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory implements all three stores behind one RWMutex. Values are
// cloned on the way in and out so callers never alias internal state.
type InMemory struct {
	mu       sync.RWMutex
	projects map[string]*Project
	tasks    map[string]*Task
	comments map[string]*Comment
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		projects: make(map[string]*Project),
		tasks:    make(map[string]*Task),
		comments: make(map[string]*Comment),
	}
}

func (m *InMemory) Create(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("tracker: project %s already exists", p.ID)
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *InMemory) Update(ctx context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return ErrNotFound
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *InMemory) Find(ctx context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *InMemory) ListByUser(ctx context.Context, userID string) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Project
	for _, p := range m.projects {
		if p.OwnerID == userID {
			out = append(out, p.Clone())
			continue
		}
		if _, ok := p.Members[userID]; ok {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemory) CreateTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("tracker: task %s already exists", t.ID)
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *InMemory) UpdateTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *InMemory) FindTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *InMemory) ListByProject(ctx context.Context, projectID string) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemory) ListOverdue(ctx context.Context, now time.Time) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.DueDate.IsZero() || !t.DueDate.Before(now) {
			continue
		}
		if t.Status == TaskCompleted || t.Status == TaskCancelled {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *InMemory) CreateComment(ctx context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; ok {
		return fmt.Errorf("tracker: comment %s already exists", c.ID)
	}
	m.comments[c.ID] = c.Clone()
	return nil
}

func (m *InMemory) UpdateComment(ctx context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; !ok {
		return ErrNotFound
	}
	m.comments[c.ID] = c.Clone()
	return nil
}

func (m *InMemory) FindComment(ctx context.Context, id string) (*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *InMemory) ListActiveByTask(ctx context.Context, taskID string) ([]*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Comment
	for _, c := range m.comments {
		if c.TaskID == taskID && !c.Deleted {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Tasks returns the task-facing view of the store.
func (m *InMemory) Tasks() TaskStore { return taskView{m} }

// Comments returns the comment-facing view of the store.
func (m *InMemory) Comments() CommentStore { return commentView{m} }

// taskView and commentView rename the shared store's methods onto the
// narrow interfaces, so one InMemory can back all three stores.
type taskView struct{ m *InMemory }

func (v taskView) Create(ctx context.Context, t *Task) error { return v.m.CreateTask(ctx, t) }
func (v taskView) Update(ctx context.Context, t *Task) error { return v.m.UpdateTask(ctx, t) }
func (v taskView) Find(ctx context.Context, id string) (*Task, error) {
	return v.m.FindTask(ctx, id)
}
func (v taskView) ListByProject(ctx context.Context, projectID string) ([]*Task, error) {
	return v.m.ListByProject(ctx, projectID)
}
func (v taskView) ListOverdue(ctx context.Context, now time.Time) ([]*Task, error) {
	return v.m.ListOverdue(ctx, now)
}

type commentView struct{ m *InMemory }

func (v commentView) Create(ctx context.Context, c *Comment) error { return v.m.CreateComment(ctx, c) }
func (v commentView) Update(ctx context.Context, c *Comment) error { return v.m.UpdateComment(ctx, c) }
func (v commentView) Find(ctx context.Context, id string) (*Comment, error) {
	return v.m.FindComment(ctx, id)
}
func (v commentView) ListActiveByTask(ctx context.Context, taskID string) ([]*Comment, error) {
	return v.m.ListActiveByTask(ctx, taskID)
}
