package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// PostgresSchema creates the table used by [PostgresStore].
const PostgresSchema = `
create table if not exists refresh_tokens (
	id           text primary key,
	token        text not null,
	csrf         text not null,
	principal_id text not null,
	attributes   jsonb not null default '{}'::jsonb,
	expires_at   timestamptz not null,
	updated_at   timestamptz not null default now()
);
create index if not exists refresh_tokens_principal_idx on refresh_tokens (principal_id);
`

var _ interface {
	FindByID(context.Context, string) (*Record, error)
	UpsertByID(context.Context, *Record) error
	DeleteByID(context.Context, string) error
	DeleteByPrincipal(context.Context, string) error
} = (*PostgresStore)(nil)

// PostgresStore keeps refresh-token records in PostgreSQL through
// database/sql. The pgx stdlib driver is registered by the caller.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, token, csrf, principal_id, attributes, expires_at from refresh_tokens where id=$1`, id)

	var (
		rec        Record
		attributes []byte
	)
	if err := row.Scan(&rec.ID, &rec.Value, &rec.CSRF, &rec.PrincipalID, &attributes, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecordInvalid, err)
		}
	}
	if rec.Expired(s.now()) {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertByID(ctx context.Context, rec *Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	attributes, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordInvalid, err)
	}
	if rec.Attributes == nil {
		attributes = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, token, csrf, principal_id, attributes, expires_at)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (id) do update set
		   token=excluded.token, csrf=excluded.csrf, attributes=excluded.attributes,
		   expires_at=excluded.expires_at, updated_at=now()`,
		rec.ID, rec.Value, rec.CSRF, rec.PrincipalID, attributes, rec.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `delete from refresh_tokens where id=$1`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) DeleteByPrincipal(ctx context.Context, principalID string) error {
	if _, err := s.db.ExecContext(ctx, `delete from refresh_tokens where principal_id=$1`, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows past their expiry and returns how many went.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res.RowsAffected()
}
