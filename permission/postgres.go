package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema creates the tables used by [PostgresRoleStore].
const PostgresSchema = `
create table if not exists roles (
	name text primary key
);
create table if not exists principal_roles (
	principal_id text not null,
	role         text not null references roles(name) on delete cascade,
	primary key (principal_id, role)
);
`

const pgForeignKeyViolation = "23503"

// PostgresRoleStore reads and writes role assignments through database/sql.
// Open db with the pgx stdlib driver so driver errors surface as
// *pgconn.PgError.
type PostgresRoleStore struct {
	db *sql.DB
}

func NewPostgresRoleStore(db *sql.DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

func (s *PostgresRoleStore) ListRolesForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role from principal_roles where principal_id=$1 order by role`, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return roles, nil
}

func (s *PostgresRoleStore) GrantRole(ctx context.Context, principalID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into principal_roles(principal_id, role) values($1,$2) on conflict do nothing`,
		principalID, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresRoleStore) RevokeRole(ctx context.Context, principalID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from principal_roles where principal_id=$1 and role=$2`, principalID, role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EnsureRoles inserts role names that do not exist yet.
func (s *PostgresRoleStore) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := s.db.ExecContext(ctx,
			`insert into roles(name) values($1) on conflict do nothing`, name); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}
