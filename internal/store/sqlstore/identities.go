package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"qazna.org/authcore/internal/auth"
)

var _ auth.IdentityStore = (*Store)(nil)

const identityColumns = `id, email, password_hash, is_active, is_superuser, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*auth.Identity, error) {
	var ident auth.Identity
	if err := row.Scan(
		&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Active, &ident.Elevated,
		timestamp{&ident.CreatedAt}, timestamp{&ident.UpdatedAt},
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// GetByID implements auth.IdentityStore.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		s.rebind(`select `+identityColumns+` from users where id=$1`), id)
	return scanIdentity(row)
}

// GetByEmail implements auth.IdentityStore. Emails match case-sensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		s.rebind(`select `+identityColumns+` from users where email=$1`), email)
	return scanIdentity(row)
}

// Create implements auth.IdentityStore.
func (s *Store) Create(ctx context.Context, in auth.NewIdentity) (*auth.Identity, error) {
	if strings.TrimSpace(in.Email) == "" || in.PasswordHash == "" {
		return nil, fmt.Errorf("%w: email and password hash are required", auth.ErrInvalidInput)
	}
	now := s.stamp()
	ident := &auth.Identity{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Active:       in.Active,
		Elevated:     in.Elevated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		s.rebind(`insert into users(`+identityColumns+`) values($1,$2,$3,$4,$5,$6,$7)`),
		ident.ID, ident.Email, ident.PasswordHash, ident.Active, ident.Elevated,
		s.timeArg(ident.CreatedAt), s.timeArg(ident.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, auth.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return ident, nil
}

// List implements auth.IdentityStore. Newest identities come first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*auth.Identity, error) {
	if limit <= 0 {
		return []*auth.Identity{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`select `+identityColumns+` from users order by created_at desc, id desc limit $1 offset $2`),
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*auth.Identity, 0, limit)
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

// SetActive implements auth.IdentityStore.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) (*auth.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		s.rebind(`update users set is_active=$1, updated_at=$2 where id=$3 returning `+identityColumns),
		active, s.timeArg(s.stamp()), id)
	return scanIdentity(row)
}

// stamp returns the current time at the precision both databases keep.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

func (s *Store) timeArg(t time.Time) any {
	if s.dialect == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t
}

// timestamp scans driver time representations: time.Time from pgx and
// modernc typed columns, text or integer seconds from untyped SQLite values.
type timestamp struct{ t *time.Time }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case int64:
		*ts.t = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return ts.parse(string(v))
	case string:
		return ts.parse(v)
	case nil:
		*ts.t = time.Time{}
		return nil
	}
	return fmt.Errorf("sqlstore: cannot scan %T into timestamp", src)
}

func (ts timestamp) parse(s string) error {
	// Go's time.String form carries a monotonic suffix some drivers keep.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("sqlstore: unrecognised timestamp %q", s)
}
