package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edudashpro/sessionctl"
)

const selectProfile = `SELECT id, auth_user_id, email, first_name, last_name, role, preschool_id,
	is_active, avatar_url, phone, home_address, home_city, home_postal_code,
	emergency_contact_name, emergency_contact_phone, emergency_contact_relationship,
	work_company, work_position, work_phone, profile_completion_status,
	created_at, updated_at
FROM profiles WHERE auth_user_id = $1 LIMIT 1`

// pq SQLSTATE codes treated as access-policy rejections.
const (
	codeInsufficientPrivilege = "42501"
	codeRaiseException        = "P0001"
)

// Options tunes the connection pool opened by [Open].
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	// ScopeClaims runs each lookup in a read-only transaction that sets
	// request.jwt.claims, so row-level policies keyed on the caller's
	// identity see the identity being loaded.
	ScopeClaims bool
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// Store reads profile rows from the tenant-scoped profiles table.
type Store struct {
	db          *sqlx.DB
	scopeClaims bool
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", sessionctl.ErrProfileStoreUnavailable, err)
	}
	return &Store{db: db, scopeClaims: opts.ScopeClaims}, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, scopeClaims bool) *Store {
	return &Store{db: db, scopeClaims: scopeClaims}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// FindProfileByIdentityID implements [sessionctl.ProfileStore].
func (s *Store) FindProfileByIdentityID(ctx context.Context, identityID string) (*sessionctl.ProfileRow, error) {
	var r row
	var err error
	if s.scopeClaims {
		err = s.findScoped(ctx, identityID, &r)
	} else {
		err = s.db.GetContext(ctx, &r, selectProfile, identityID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return r.toProfileRow(), nil
}

func (s *Store) findScoped(ctx context.Context, identityID string, dst *row) error {
	claims, err := json.Marshal(map[string]string{"sub": identityID, "role": "authenticated"})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
		return err
	}
	if err := tx.GetContext(ctx, dst, selectProfile, identityID); err != nil {
		return err
	}
	return tx.Commit()
}

// classify maps driver errors onto the store contract.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sessionctl.ErrProfileNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", sessionctl.ErrProfileStoreUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeInsufficientPrivilege:
			return fmt.Errorf("%w: %s", sessionctl.ErrProfileAccessDenied, pqErr.Message)
		case codeRaiseException:
			if strings.Contains(strings.ToLower(pqErr.Message), "row-level security") {
				return fmt.Errorf("%w: %s", sessionctl.ErrProfileAccessDenied, pqErr.Message)
			}
		}
	}
	return fmt.Errorf("%w: %v", sessionctl.ErrProfileStoreUnavailable, err)
}
