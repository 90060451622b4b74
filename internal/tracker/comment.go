package tracker

import (
	"context"
	"fmt"
	"strings"

	"taskforge.org/internal/authz"
	"taskforge.org/internal/ids"
)

// commentSnapshot loads the comment's task and project and builds the
// evaluator input.
func (s *Service) commentSnapshot(ctx context.Context, c *Comment) (authz.CommentSnapshot, error) {
	t, err := s.tasks.Find(ctx, c.TaskID)
	if err != nil {
		return authz.CommentSnapshot{}, err
	}
	p, err := s.projects.Find(ctx, t.ProjectID)
	if err != nil {
		return authz.CommentSnapshot{}, err
	}
	return authz.CommentSnapshot{Project: p.Snapshot(), AuthorID: c.AuthorID}, nil
}

// CreateComment adds a comment to a task. Owner and members of the owning
// project may comment.
func (s *Service) CreateComment(ctx context.Context, actor authz.Actor, taskID, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", ErrInvalidInput)
	}
	t, err := s.tasks.Find(ctx, taskID)
	if err != nil {
		return nil, err
	}
	snap, err := s.taskSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	if d := authz.CanCreateComment(actor, snap); !d.Allowed {
		return nil, forbidden(d)
	}
	now := s.now().UTC()
	c := &Comment{
		ID:        ids.New(),
		TaskID:    taskID,
		AuthorID:  actor.ID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// ListComments returns a task's comments with soft-deleted ones filtered
// out.
func (s *Service) ListComments(ctx context.Context, taskID string) ([]*Comment, error) {
	if _, err := s.tasks.Find(ctx, taskID); err != nil {
		return nil, err
	}
	return s.comments.ListActiveByTask(ctx, taskID)
}

// UpdateComment edits comment text. Strictly author-only; a deleted
// comment reads as absent.
func (s *Service) UpdateComment(ctx context.Context, actor authz.Actor, id, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", ErrInvalidInput)
	}
	c, err := s.comments.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, ErrNotFound
	}
	if d := authz.CanUpdateComment(actor, authz.CommentSnapshot{AuthorID: c.AuthorID}); !d.Allowed {
		return nil, forbidden(d)
	}
	c.Content = content
	c.UpdatedAt = s.now().UTC()
	if err := s.comments.Update(ctx, c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// DeleteComment soft-deletes a comment. Allowed for the author, the owning
// project's owner, and admins. Deleting an already deleted comment returns
// not found.
func (s *Service) DeleteComment(ctx context.Context, actor authz.Actor, id string) error {
	c, err := s.comments.Find(ctx, id)
	if err != nil {
		return err
	}
	if c.Deleted {
		return ErrNotFound
	}
	snap, err := s.commentSnapshot(ctx, c)
	if err != nil {
		return err
	}
	if d := authz.CanDeleteComment(actor, snap); !d.Allowed {
		return forbidden(d)
	}
	c.Deleted = true
	c.UpdatedAt = s.now().UTC()
	return s.comments.Update(ctx, c)
}
