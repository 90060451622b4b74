// Package authz contains the permission evaluator: pure decision functions
// over an acting identity and a resource snapshot taken at call time. No
// rule consults storage, re-checks another rule, or grants access through
// an implicit hierarchy; every clause is spelled out.
package authz

import "taskforge.org/internal/identity"

// Actor is the acting identity reduced to what the rules need.
type Actor struct {
	ID   string
	Role identity.Role
}

// ProjectSnapshot captures ownership and membership at evaluation time.
// The owner is inserted into the member set at creation and never
// re-checked afterwards, so rules test both clauses explicitly.
type ProjectSnapshot struct {
	ID      string
	OwnerID string
	Members map[string]struct{}
}

// IsMember reports membership in the project's member set.
func (p ProjectSnapshot) IsMember(id string) bool {
	_, ok := p.Members[id]
	return ok
}

// TaskSnapshot is a task plus its owning project.
type TaskSnapshot struct {
	Project    ProjectSnapshot
	AssigneeID string
}

// CommentSnapshot is a comment plus its owning project.
type CommentSnapshot struct {
	Project  ProjectSnapshot
	AuthorID string
}

// Decision is the evaluation result. Reason is set only on denial and is
// meant for audit logging, never for altering the caller's decision.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow grants the action.
func Allow() Decision { return Decision{Allowed: true} }

// Deny refuses the action with a stable reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Denial reasons, one per rule family.
const (
	ReasonNotProjectMember    = "actor is neither project owner nor member"
	ReasonNotProjectOwner     = "only the project owner may perform this action"
	ReasonTaskUpdateDenied    = "actor is not project owner, admin, assignee, or a manager in the project"
	ReasonTaskAssignDenied    = "actor is not project owner, manager, or admin"
	ReasonNotCommentAuthor    = "only the comment author may edit a comment"
	ReasonCommentDeleteDenied = "actor is not comment author, project owner, or admin"
)

// CanUpdateProject covers rename/describe. Membership alone suffices;
// this is deliberately broader than owner-only.
func CanUpdateProject(actor Actor, p ProjectSnapshot) Decision {
	if actor.ID == p.OwnerID || p.IsMember(actor.ID) {
		return Allow()
	}
	return Deny(ReasonNotProjectMember)
}

// CanAddProjectMember is owner-only. Role is irrelevant: an admin who is
// not the owner is denied.
func CanAddProjectMember(actor Actor, p ProjectSnapshot) Decision {
	if actor.ID == p.OwnerID {
		return Allow()
	}
	return Deny(ReasonNotProjectOwner)
}

// CanArchiveProject is owner-only.
func CanArchiveProject(actor Actor, p ProjectSnapshot) Decision {
	if actor.ID == p.OwnerID {
		return Allow()
	}
	return Deny(ReasonNotProjectOwner)
}

// CanCreateTask allows the project owner and members.
func CanCreateTask(actor Actor, p ProjectSnapshot) Decision {
	if actor.ID == p.OwnerID || p.IsMember(actor.ID) {
		return Allow()
	}
	return Deny(ReasonNotProjectMember)
}

// CanUpdateTask covers field updates. Allowed for the project owner, any
// admin, the current assignee, or a manager who is a project member. Note
// the asymmetry with task creation: a plain developer member may create a
// task yet not update one they are not assigned to.
func CanUpdateTask(actor Actor, t TaskSnapshot) Decision {
	if actor.ID == t.Project.OwnerID {
		return Allow()
	}
	if actor.Role == identity.RoleAdmin {
		return Allow()
	}
	if t.AssigneeID != "" && actor.ID == t.AssigneeID {
		return Allow()
	}
	if actor.Role == identity.RoleManager && t.Project.IsMember(actor.ID) {
		return Allow()
	}
	return Deny(ReasonTaskUpdateDenied)
}

// CanTransitionTask applies the task-update rule set to status changes.
func CanTransitionTask(actor Actor, t TaskSnapshot) Decision {
	return CanUpdateTask(actor, t)
}

// CanAssignTask allows the project owner, or any manager or admin.
// Managers and admins need no project membership: a manager outside the
// project may assign tasks into it. Known looseness, preserved as-is.
func CanAssignTask(actor Actor, t TaskSnapshot) Decision {
	if actor.ID == t.Project.OwnerID {
		return Allow()
	}
	if actor.Role == identity.RoleManager || actor.Role == identity.RoleAdmin {
		return Allow()
	}
	return Deny(ReasonTaskAssignDenied)
}

// CanCreateComment allows the project owner and members.
func CanCreateComment(actor Actor, t TaskSnapshot) Decision {
	if actor.ID == t.Project.OwnerID || t.Project.IsMember(actor.ID) {
		return Allow()
	}
	return Deny(ReasonNotProjectMember)
}

// CanUpdateComment is author-only; even an admin cannot edit another's
// comment text.
func CanUpdateComment(actor Actor, c CommentSnapshot) Decision {
	if actor.ID == c.AuthorID {
		return Allow()
	}
	return Deny(ReasonNotCommentAuthor)
}

// CanDeleteComment allows the comment author, the owning project's owner,
// or any admin.
func CanDeleteComment(actor Actor, c CommentSnapshot) Decision {
	if actor.ID == c.AuthorID {
		return Allow()
	}
	if actor.ID == c.Project.OwnerID {
		return Allow()
	}
	if actor.Role == identity.RoleAdmin {
		return Allow()
	}
	return Deny(ReasonCommentDeleteDenied)
}
