package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
)

// DefaultLoanDays is the loan period used when none has been configured.
const DefaultLoanDays = 14

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Uses INSERT OR IGNORE + re-SELECT to avoid TOCTOU race on concurrent startup.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	// Try to generate and insert first (safe against races).
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	// Always read back (either our insert or the existing value).
	var secret string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`,
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	return secret, nil
}

// GetLoanPeriodDays returns the configured loan period in days, used to fill
// in a return date when a borrow request does not name one.
func GetLoanPeriodDays(ctx context.Context, db *sql.DB) (int, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'loan_period_days'`,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return DefaultLoanDays, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying loan_period_days: %w", err)
	}

	days, err := strconv.Atoi(value)
	if err != nil || days < 1 {
		return DefaultLoanDays, nil
	}
	return days, nil
}

// SetLoanPeriodDays stores the loan period in days.
func SetLoanPeriodDays(ctx context.Context, db *sql.DB, days int) error {
	if days < 1 {
		return fmt.Errorf("loan period must be at least one day")
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('loan_period_days', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(days),
	)
	if err != nil {
		return fmt.Errorf("storing loan_period_days: %w", err)
	}
	return nil
}
