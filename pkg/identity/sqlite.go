package identity

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore is the production Lookup backed by a local SQLite database.
// Accounts are provisioned out of band (registration flow writes here); the
// relay only reads and periodically purges long-expired rows.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	email           TEXT NOT NULL,
	activation_code TEXT NOT NULL,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT 'fr',
	active          INTEGER NOT NULL DEFAULT 1,
	expires_at      TIMESTAMP NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (email, activation_code)
);
CREATE INDEX IF NOT EXISTS idx_accounts_expires_at ON accounts(expires_at);
`

// NewSQLiteStore opens (and if needed initializes) the accounts database.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize accounts schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByEmailAndCode implements Lookup.
func (s *SQLiteStore) FindByEmailAndCode(ctx context.Context, email, code string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT email, first_name, last_name, language, active, expires_at
		FROM accounts
		WHERE email = ? AND activation_code = ?`,
		email, code,
	)

	var (
		ident     Identity
		active    int
		expiresAt time.Time
	)
	if err := row.Scan(&ident.Email, &ident.FirstName, &ident.LastName, &ident.Language, &active, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}

	remaining := time.Until(expiresAt)
	ident.Active = active == 1 && remaining > 0
	if remaining > 0 {
		ident.DaysRemaining = int(math.Ceil(remaining.Hours() / 24))
	}

	return &ident, nil
}

// CreateAccount inserts or replaces an account row. Used by provisioning and
// by tests.
func (s *SQLiteStore) CreateAccount(ctx context.Context, ident Identity, code string, expiresAt time.Time) error {
	email := strings.ToLower(strings.TrimSpace(ident.Email))
	if email == "" || code == "" {
		return fmt.Errorf("email and activation code are required")
	}

	active := 0
	if ident.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (email, activation_code, first_name, last_name, language, active, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		email, strings.TrimSpace(code), ident.FirstName, ident.LastName, ident.Language, active, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// PurgeExpired deletes accounts whose expiry lies more than grace in the
// past. Returns the number of rows removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace).UTC()

	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired accounts: %w", err)
	}

	removed, _ := res.RowsAffected()
	if removed > 0 {
		s.logger.Info().
			Int64("removed", removed).
			Msg("Purged expired activation codes")
	}

	return removed, nil
}
