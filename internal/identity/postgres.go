package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the voice_identities table. Execute it via
// [PostgresDirectory.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS voice_identities (
    label        TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    bound_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_voice_identities_user ON voice_identities(user_id);
`

// DB is the database interface used by [PostgresDirectory]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresDirectory is a [Directory] backed by a PostgreSQL database.
type PostgresDirectory struct {
	db DB
}

// Compile-time interface check.
var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory creates a [PostgresDirectory] over the given
// connection or pool. The caller is responsible for calling
// [PostgresDirectory.Migrate] before issuing queries.
func NewPostgresDirectory(db DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Migrate executes the [Schema] DDL, creating the voice_identities table
// and its unique user index if they do not already exist.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	if _, err := d.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("identity: migrate: %w", err)
	}
	return nil
}

// Bind implements [Directory.Bind]. Unique violations on either the label
// or the user column surface as [ErrAlreadyBound].
func (d *PostgresDirectory) Bind(ctx context.Context, ident *Identity) error {
	const query = `
		INSERT INTO voice_identities (label, user_id, display_name)
		VALUES ($1, $2, $3)
		RETURNING bound_at`

	err := d.db.QueryRow(ctx, query, ident.Label, ident.UserID, ident.DisplayName).
		Scan(&ident.BoundAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identity: label %q or user %q: %w", ident.Label, ident.UserID, ErrAlreadyBound)
		}
		return fmt.Errorf("identity: bind %q: %w", ident.Label, err)
	}
	return nil
}

// Get implements [Directory.Get].
func (d *PostgresDirectory) Get(ctx context.Context, label string) (*Identity, error) {
	const query = `
		SELECT label, user_id, display_name, bound_at
		FROM voice_identities
		WHERE label = $1`
	return d.queryOne(ctx, query, label)
}

// GetByUser implements [Directory.GetByUser].
func (d *PostgresDirectory) GetByUser(ctx context.Context, userID string) (*Identity, error) {
	const query = `
		SELECT label, user_id, display_name, bound_at
		FROM voice_identities
		WHERE user_id = $1`
	return d.queryOne(ctx, query, userID)
}

func (d *PostgresDirectory) queryOne(ctx context.Context, query, arg string) (*Identity, error) {
	var ident Identity
	err := d.db.QueryRow(ctx, query, arg).
		Scan(&ident.Label, &ident.UserID, &ident.DisplayName, &ident.BoundAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: get %q: %w", arg, err)
	}
	return &ident, nil
}

// Unbind implements [Directory.Unbind].
func (d *PostgresDirectory) Unbind(ctx context.Context, label string) error {
	const query = `DELETE FROM voice_identities WHERE label = $1`
	if _, err := d.db.Exec(ctx, query, label); err != nil {
		return fmt.Errorf("identity: unbind %q: %w", label, err)
	}
	return nil
}

// List implements [Directory.List].
func (d *PostgresDirectory) List(ctx context.Context) ([]Identity, error) {
	const query = `
		SELECT label, user_id, display_name, bound_at
		FROM voice_identities
		ORDER BY label`

	rows, err := d.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("identity: list: %w", err)
	}
	defer rows.Close()

	var idents []Identity
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.Label, &ident.UserID, &ident.DisplayName, &ident.BoundAt); err != nil {
			return nil, fmt.Errorf("identity: list scan: %w", err)
		}
		idents = append(idents, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: list: %w", err)
	}
	return idents, nil
}

// isUniqueViolation checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
