package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"taskforge.org/internal/ids"
)

var (
	_ ProjectStore = (*PGProjectStore)(nil)
	_ TaskStore    = (*PGTaskStore)(nil)
	_ CommentStore = (*PGCommentStore)(nil)
)

const projectColumns = `id, name, description, owner_id, status, cached_stats, created_at, updated_at, archived_at`

// PGProjectStore implements ProjectStore using PostgreSQL. The member set
// lives in project_members and is rewritten wholesale on update.
type PGProjectStore struct {
	db *sql.DB
}

func NewPGProjectStore(db *sql.DB) *PGProjectStore {
	return &PGProjectStore{db: db}
}

func (s *PGProjectStore) Create(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`insert into projects(id, name, description, owner_id, status, cached_stats, created_at, updated_at)
		 values($1,$2,$3,$4,$5,nullif($6,''),$7,$8)`,
		p.ID, p.Name, p.Description, p.OwnerID, string(p.Status), p.CachedStats, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	for id := range p.Members {
		if _, err := tx.ExecContext(ctx,
			`insert into project_members(project_id, user_id) values($1,$2)`, p.ID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGProjectStore) Update(ctx context.Context, p *Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`update projects
		 set name=$2, description=$3, status=$4, cached_stats=nullif($5,''),
		     updated_at=$6, archived_at=nullif($7, timestamp '0001-01-01')
		 where id=$1`,
		p.ID, p.Name, p.Description, string(p.Status), p.CachedStats, p.UpdatedAt, p.ArchivedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`delete from project_members where project_id=$1`, p.ID); err != nil {
		return err
	}
	for id := range p.Members {
		if _, err := tx.ExecContext(ctx,
			`insert into project_members(project_id, user_id) values($1,$2)`, p.ID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGProjectStore) Find(ctx context.Context, id string) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`select `+projectColumns+` from projects where id=$1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select user_id from project_members where project_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		p.Members[userID] = struct{}{}
	}
	return p, rows.Err()
}

func (s *PGProjectStore) ListByUser(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`select distinct p.id from projects p
		 left join project_members m on m.project_id = p.id
		 where p.owner_id=$1 or m.user_id=$1
		 order by p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projectIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		projectIDs = append(projectIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*Project, 0, len(projectIDs))
	for _, id := range projectIDs {
		p, err := s.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanProject(row *sql.Row) (*Project, error) {
	var (
		p          Project
		status     string
		stats      sql.NullString
		archivedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &status,
		&stats, &p.CreatedAt, &p.UpdatedAt, &archivedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Status = ProjectStatus(status)
	if stats.Valid {
		p.CachedStats = stats.String
	}
	if archivedAt.Valid {
		p.ArchivedAt = archivedAt.Time
	}
	p.Members = make(map[string]struct{})
	return &p, nil
}

const taskColumns = `id, project_id, title, description, status, priority, assignee_id, due_date, completed_at, status_history, version, created_at, updated_at`

// PGTaskStore implements TaskStore using PostgreSQL. The status history is
// a jsonb column; it is a small append-only log read and written with the
// task row.
type PGTaskStore struct {
	db *sql.DB
}

func NewPGTaskStore(db *sql.DB) *PGTaskStore {
	return &PGTaskStore{db: db}
}

func (s *PGTaskStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	history, err := json.Marshal(t.StatusHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into tasks(id, project_id, title, description, status, priority, assignee_id, due_date, status_history, version, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8, timestamp '0001-01-01'),$9,$10,$11,$12)`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssigneeID, t.DueDate, history, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *PGTaskStore) Update(ctx context.Context, t *Task) error {
	history, err := json.Marshal(t.StatusHistory)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update tasks
		 set title=$2, description=$3, status=$4, priority=$5, assignee_id=nullif($6,''),
		     due_date=nullif($7, timestamp '0001-01-01'), completed_at=nullif($8, timestamp '0001-01-01'),
		     status_history=$9, version=$10, updated_at=$11
		 where id=$1`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.AssigneeID,
		t.DueDate, t.CompletedAt, history, t.Version, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGTaskStore) Find(ctx context.Context, id string) (*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+taskColumns+` from tasks where id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

func (s *PGTaskStore) ListByProject(ctx context.Context, projectID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+taskColumns+` from tasks where project_id=$1 order by created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PGTaskStore) ListOverdue(ctx context.Context, now time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+taskColumns+` from tasks
		 where due_date is not null and due_date < $1
		   and status not in ('completed','cancelled')
		 order by due_date`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		var (
			t           Task
			status      string
			priority    string
			assignee    sql.NullString
			dueDate     sql.NullTime
			completedAt sql.NullTime
			history     []byte
		)
		err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority,
			&assignee, &dueDate, &completedAt, &history, &t.Version, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		t.Status = TaskStatus(status)
		t.Priority = TaskPriority(priority)
		if assignee.Valid {
			t.AssigneeID = assignee.String
		}
		if dueDate.Valid {
			t.DueDate = dueDate.Time
		}
		if completedAt.Valid {
			t.CompletedAt = completedAt.Time
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &t.StatusHistory); err != nil {
				return nil, err
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

const commentColumns = `id, task_id, author_id, content, deleted, created_at, updated_at`

// PGCommentStore implements CommentStore using PostgreSQL.
type PGCommentStore struct {
	db *sql.DB
}

func NewPGCommentStore(db *sql.DB) *PGCommentStore {
	return &PGCommentStore{db: db}
}

func (s *PGCommentStore) Create(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into comments(id, task_id, author_id, content, deleted, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.TaskID, c.AuthorID, c.Content, c.Deleted, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *PGCommentStore) Update(ctx context.Context, c *Comment) error {
	res, err := s.db.ExecContext(ctx,
		`update comments set content=$2, deleted=$3, updated_at=$4 where id=$1`,
		c.ID, c.Content, c.Deleted, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGCommentStore) Find(ctx context.Context, id string) (*Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx,
		`select `+commentColumns+` from comments where id=$1`, id))
}

func (s *PGCommentStore) ListActiveByTask(ctx context.Context, taskID string) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+commentColumns+` from comments
		 where task_id=$1 and not deleted order by created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.Deleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanComment(row *sql.Row) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
