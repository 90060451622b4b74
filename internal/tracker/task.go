package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskforge.org/internal/authz"
	"taskforge.org/internal/ids"
)

// taskSnapshot loads the task's project and builds the evaluator input.
func (s *Service) taskSnapshot(ctx context.Context, t *Task) (authz.TaskSnapshot, error) {
	p, err := s.projects.Find(ctx, t.ProjectID)
	if err != nil {
		return authz.TaskSnapshot{}, err
	}
	return authz.TaskSnapshot{Project: p.Snapshot(), AssigneeID: t.AssigneeID}, nil
}

// CreateTask creates a task in the given project. Owner and members may
// create; archived projects accept new tasks like active ones.
func (s *Service) CreateTask(ctx context.Context, actor authz.Actor, projectID, title, description string, priority TaskPriority, dueDate time.Time) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: task title is required", ErrInvalidInput)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if _, ok := taskPriorities[priority]; !ok {
		return nil, fmt.Errorf("%w: unsupported priority %q", ErrInvalidInput, priority)
	}
	p, err := s.projects.Find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanCreateTask(actor, p.Snapshot()); !d.Allowed {
		return nil, forbidden(d)
	}
	now := s.now().UTC()
	t := &Task{
		ID:          ids.New(),
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      TaskTodo,
		Priority:    priority,
		DueDate:     dueDate,
		StatusHistory: []StatusChange{
			{Status: TaskTodo, ChangedAt: now, ChangedBy: actor.ID},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	// Counts changed for one project, but eviction is namespace-wide;
	// key-scoped eviction here would be a behavior change.
	s.cache.EvictAll(NamespaceProjectStats)
	return t.Clone(), nil
}

// GetTask returns a task by id.
func (s *Service) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.tasks.Find(ctx, id)
}

// ListTasks returns all tasks in a project.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]*Task, error) {
	return s.tasks.ListByProject(ctx, projectID)
}

// UpdateTask edits task fields. Allowed for the project owner, admins, the
// assignee, and managers who are project members.
func (s *Service) UpdateTask(ctx context.Context, actor authz.Actor, id string, title, description *string, priority *TaskPriority, dueDate *time.Time) (*Task, error) {
	t, err := s.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.taskSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	if d := authz.CanUpdateTask(actor, snap); !d.Allowed {
		return nil, forbidden(d)
	}
	if title != nil {
		next := strings.TrimSpace(*title)
		if next == "" {
			return nil, fmt.Errorf("%w: task title is required", ErrInvalidInput)
		}
		t.Title = next
	}
	if description != nil {
		t.Description = strings.TrimSpace(*description)
	}
	if priority != nil {
		if _, ok := taskPriorities[*priority]; !ok {
			return nil, fmt.Errorf("%w: unsupported priority %q", ErrInvalidInput, *priority)
		}
		t.Priority = *priority
	}
	if dueDate != nil {
		t.DueDate = *dueDate
	}
	t.Version++
	t.UpdatedAt = s.now().UTC()
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.evictTaskCaches()
	return t.Clone(), nil
}

// AssignTask sets or clears the assignee. Allowed for the project owner
// and for any manager or admin, member or not. An empty assignee id
// unassigns the task.
func (s *Service) AssignTask(ctx context.Context, actor authz.Actor, id, assigneeID string) (*Task, error) {
	t, err := s.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.taskSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAssignTask(actor, snap); !d.Allowed {
		return nil, forbidden(d)
	}
	assigneeID = strings.TrimSpace(assigneeID)
	recipient := assigneeID
	if assigneeID != "" && s.dir != nil {
		rec, err := s.resolveUser(ctx, assigneeID)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidInput, assigneeID)
		}
		if rec != nil {
			recipient = rec.Email
		}
	}
	t.AssigneeID = assigneeID
	t.Version++
	t.UpdatedAt = s.now().UTC()
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.evictTaskCaches()
	if assigneeID != "" {
		s.notifier.Emit("task.assigned", recipient, map[string]any{
			"task_id": t.ID,
			"title":   t.Title,
		})
	}
	return t.Clone(), nil
}

// TransitionTask moves a task to a new workflow status. Same rule set as
// field updates. Every transition appends to the status history, including
// transitions to the current status; completion stamps CompletedAt and
// moving away from completed clears it.
func (s *Service) TransitionTask(ctx context.Context, actor authz.Actor, id string, status TaskStatus) (*Task, error) {
	if _, ok := taskStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
	}
	t, err := s.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.taskSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	if d := authz.CanTransitionTask(actor, snap); !d.Allowed {
		return nil, forbidden(d)
	}
	now := s.now().UTC()
	t.Status = status
	t.StatusHistory = append(t.StatusHistory, StatusChange{Status: status, ChangedAt: now, ChangedBy: actor.ID})
	if status == TaskCompleted {
		t.CompletedAt = now
	} else {
		t.CompletedAt = time.Time{}
	}
	t.Version++
	t.UpdatedAt = now
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.evictTaskCaches()
	if status == TaskCompleted {
		s.notifier.Emit("task.completed", t.AssigneeID, map[string]any{
			"task_id": t.ID,
			"title":   t.Title,
		})
	}
	return t.Clone(), nil
}

// evictTaskCaches drops both namespaces wholesale. Task writes can change
// any project's counts and the cached project record embeds a stats line,
// so the eviction is deliberately coarse.
func (s *Service) evictTaskCaches() {
	s.cache.EvictAll(NamespaceProjects)
	s.cache.EvictAll(NamespaceProjectStats)
}
