package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/ports"
)

// OpenPostgres returns a database handle for the hosted Postgres at endpoint.
// No connection is made until the first query.
func OpenPostgres(endpoint, password string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store endpoint: %w", err)
	}
	if password != "" {
		cfg.Password = password
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	// Transaction-mode poolers in front of hosted Postgres reject named prepared statements
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// PostgresStore is a Postgres implementation of the CredentialStore interface
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time

	findQuery  string
	touchQuery string
	pingQuery  string
}

// NewPostgresStore creates a credential store over db using the given table layout
func NewPostgresStore(db *sql.DB, schema Schema) ports.CredentialStore {
	return newPostgresStore(db, schema, time.Now)
}

func newPostgresStore(db *sql.DB, schema Schema, now func() time.Time) *PostgresStore {
	s := schema.withDefaults()
	table := quote(s.Table)

	return &PostgresStore{
		db:  db,
		now: now,
		findQuery: fmt.Sprintf(
			`SELECT %s::text, %s, %s, %s, %s, %s, %s FROM %s WHERE %s = $1 LIMIT 1`,
			quote(s.ID), quote(s.Username), quote(s.PasswordHash), quote(s.CreatedAt),
			quote(s.LastLogin), quote(s.Active), quote(s.AccountType),
			table, quote(s.Username),
		),
		touchQuery: fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`,
			table, quote(s.LastLogin), quote(s.ID)),
		pingQuery: fmt.Sprintf(`SELECT 1 FROM %s LIMIT 1`, table),
	}
}

// FindByUsername fetches the row with exactly this username
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*core.Credential, error) {
	var (
		c           core.Credential
		hash        sql.NullString
		createdAt   sql.NullTime
		lastLogin   sql.NullTime
		active      sql.NullBool
		accountType sql.NullString
	)

	err := s.db.QueryRowContext(ctx, s.findQuery, username).
		Scan(&c.ID, &c.Username, &hash, &createdAt, &lastLogin, &active, &accountType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("find credential", err)
	}

	c.PasswordHash = hash.String
	c.CreatedAt = createdAt.Time
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLogin = &t
	}
	c.Active = active.Bool
	c.AccountType = accountType.String

	return &c, nil
}

// TouchLastLogin stamps the current time on the row's last-login column
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.touchQuery, s.now().UTC(), id)
	if err != nil {
		return false, wrapErr("touch last login", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("touch last login", err)
	}
	return n > 0, nil
}

// Ping runs a trivial query against the users table
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.pingQuery).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrapErr("ping", err)
	}
	return nil
}
