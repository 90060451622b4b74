package identity

import (
	"context"
	"database/sql"

	"taskforge.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

const identityColumns = `id, username, email, password_hash, full_name, role, active, session_token, created_at, updated_at, last_login_at`

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, id *Identity) error {
	if id.ID == "" {
		id.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, username, email, password_hash, full_name, role, active, session_token, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10)`,
		id.ID, id.Username, id.Email, id.PasswordHash, id.FullName, string(id.Role),
		id.Active, id.SessionToken, id.CreatedAt, id.UpdatedAt,
	)
	return err
}

func (s *PGStore) Update(ctx context.Context, id *Identity) error {
	res, err := s.db.ExecContext(ctx,
		`update identities
		 set email=$2, password_hash=$3, full_name=$4, role=$5, active=$6,
		     session_token=nullif($7,''), updated_at=$8, last_login_at=nullif($9, timestamp '0001-01-01')
		 where id=$1`,
		id.ID, id.Email, id.PasswordHash, id.FullName, string(id.Role),
		id.Active, id.SessionToken, id.UpdatedAt, id.LastLoginAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1`, id))
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where username=$1`, username))
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where email=$1`, email))
}

func (s *PGStore) FindBySessionToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where session_token=$1`, token))
}

func (s *PGStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from identities where username=$1)`, username).Scan(&exists)
	return exists, err
}

func (s *PGStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from identities where email=$1)`, email).Scan(&exists)
	return exists, err
}

func (s *PGStore) scanOne(row *sql.Row) (*Identity, error) {
	var (
		id        Identity
		role      string
		session   sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&id.ID, &id.Username, &id.Email, &id.PasswordHash, &id.FullName,
		&role, &id.Active, &session, &id.CreatedAt, &id.UpdatedAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id.Role = Role(role)
	if session.Valid {
		id.SessionToken = session.String
	}
	if lastLogin.Valid {
		id.LastLoginAt = lastLogin.Time
	}
	return &id, nil
}
