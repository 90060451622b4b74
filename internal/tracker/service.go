// Package tracker implements the project, task and comment domain on top
// of the permission evaluator, a namespaced read cache and best-effort
// background notifications.
package tracker

import (
	"context"
	"time"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/identity"
	"taskforge.org/internal/notify"
)

// Cache namespaces. Project records and derived statistics are cached
// separately because their invalidation schedules differ: project evictions
// are key-scoped and synchronous, stats evictions are partly deferred.
const (
	NamespaceProjects     = "projects"
	NamespaceProjectStats = "project_stats"
)

// IdentityDirectory resolves user ids when memberships and assignments are
// created. identity.Service satisfies it.
type IdentityDirectory interface {
	Find(ctx context.Context, id string) (*identity.Identity, error)
}

// Service coordinates the tracker domain. Every mutating operation takes
// the acting identity, runs the relevant permission rule before touching
// storage, and keeps the read cache coherent on success.
type Service struct {
	projects ProjectStore
	tasks    TaskStore
	comments CommentStore
	dir      IdentityDirectory
	cache    *cache.Cache
	notifier *notify.Notifier
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithCache enables read caching for projects and stats.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier enables notifications and deferred cache maintenance.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithIdentityDirectory enables existence checks on member and assignee ids.
func WithIdentityDirectory(dir IdentityDirectory) Option {
	return func(s *Service) { s.dir = dir }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the tracker service.
func NewService(projects ProjectStore, tasks TaskStore, comments CommentStore, opts ...Option) *Service {
	s := &Service{
		projects: projects,
		tasks:    tasks,
		comments: comments,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveUser checks that a referenced user id exists when a directory is
// wired; without one the reference is taken on faith.
func (s *Service) resolveUser(ctx context.Context, id string) (*identity.Identity, error) {
	if s.dir == nil {
		return nil, nil
	}
	return s.dir.Find(ctx, id)
}
