package tracker

import (
	"context"
	"fmt"
	"strings"

	"taskforge.org/internal/authz"
	"taskforge.org/internal/ids"
	"taskforge.org/internal/obs"
)

// CreateProject creates a project owned by the actor. The owner is placed
// in the member set immediately so membership rules never special-case
// ownership at read time.
func (s *Service) CreateProject(ctx context.Context, actor authz.Actor, name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &Project{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     actor.ID,
		Members:     map[string]struct{}{actor.ID: {}},
		Status:      ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// GetProject returns a project, served from cache when possible.
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	if v, ok := s.cache.Get(NamespaceProjects, id); ok {
		if p, ok := v.(*Project); ok {
			return p.Clone(), nil
		}
	}
	p, err := s.projects.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Put(NamespaceProjects, id, p.Clone())
	return p, nil
}

// ListProjects returns the projects a user owns or belongs to.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	return s.projects.ListByUser(ctx, userID)
}

// UpdateProject renames or re-describes a project. Any member may do this,
// not just the owner. The project cache entry is evicted synchronously;
// the stats entry is evicted on the background pool, so a concurrent stats
// read may briefly re-cache a value computed before this write landed.
func (s *Service) UpdateProject(ctx context.Context, actor authz.Actor, id string, name, description *string) (*Project, error) {
	p, err := s.projects.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanUpdateProject(actor, p.Snapshot()); !d.Allowed {
		return nil, forbidden(d)
	}
	if name != nil {
		next := strings.TrimSpace(*name)
		if next == "" {
			return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
		}
		p.Name = next
	}
	if description != nil {
		p.Description = strings.TrimSpace(*description)
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.cache.Evict(NamespaceProjects, id)
	s.evictStatsDeferred(id)
	return p.Clone(), nil
}

// AddMember adds a user to the project's member set. Owner-only; the
// actor's role is irrelevant.
func (s *Service) AddMember(ctx context.Context, actor authz.Actor, projectID, userID string) (*Project, error) {
	p, err := s.projects.Find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAddProjectMember(actor, p.Snapshot()); !d.Allowed {
		return nil, forbidden(d)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if s.dir != nil {
		if _, err := s.resolveUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidInput, userID)
		}
	}
	if _, ok := p.Members[userID]; !ok {
		p.Members[userID] = struct{}{}
		p.UpdatedAt = s.now().UTC()
		if err := s.projects.Update(ctx, p); err != nil {
			return nil, err
		}
	}
	s.cache.Evict(NamespaceProjects, projectID)
	return p.Clone(), nil
}

// ArchiveProject marks a project archived. Owner-only. Archiving changes
// only the project record: its tasks keep their statuses and remain
// mutable afterwards.
func (s *Service) ArchiveProject(ctx context.Context, actor authz.Actor, id string) (*Project, error) {
	p, err := s.projects.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanArchiveProject(actor, p.Snapshot()); !d.Allowed {
		return nil, forbidden(d)
	}
	if p.Status != ProjectArchived {
		p.Status = ProjectArchived
		p.ArchivedAt = s.now().UTC()
		p.UpdatedAt = p.ArchivedAt
		if err := s.projects.Update(ctx, p); err != nil {
			return nil, err
		}
		s.notifier.Emit("project.archived", p.OwnerID, map[string]any{"project_id": p.ID, "name": p.Name})
	}
	s.cache.Evict(NamespaceProjects, id)
	s.cache.Evict(NamespaceProjectStats, id)
	return p.Clone(), nil
}

// ProjectStats computes task counts for a project, served from cache when
// possible. The rendered summary line is persisted on the project record
// best-effort; a persistence failure only logs.
func (s *Service) ProjectStats(ctx context.Context, id string) (Stats, error) {
	if v, ok := s.cache.Get(NamespaceProjectStats, id); ok {
		if st, ok := v.(Stats); ok {
			return st, nil
		}
	}
	p, err := s.projects.Find(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	tasks, err := s.tasks.ListByProject(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ProjectID: id, Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskTodo:
			st.Todo++
		case TaskInProgress:
			st.InProgress++
		case TaskCompleted:
			st.Completed++
		}
	}
	s.cache.Put(NamespaceProjectStats, id, st)

	if summary := st.Summary(); summary != p.CachedStats {
		p.CachedStats = summary
		if err := s.projects.Update(ctx, p); err != nil {
			obs.Warn("stats persistence failed", map[string]any{
				"project": id,
				"error":   err.Error(),
			})
		} else {
			s.cache.Evict(NamespaceProjects, id)
		}
	}
	return st, nil
}

// evictStatsDeferred schedules a stats eviction on the background pool,
// falling back to a synchronous eviction when no pool is wired.
func (s *Service) evictStatsDeferred(projectID string) {
	queued := s.notifier.Async(func(ctx context.Context) error {
		s.cache.Evict(NamespaceProjectStats, projectID)
		return nil
	})
	if !queued {
		s.cache.Evict(NamespaceProjectStats, projectID)
	}
}
