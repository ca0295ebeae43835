package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// InsertUser creates a user row. Registration lives elsewhere; this backs the
// CLI seed command and tests.
func InsertUser(ctx context.Context, q sqlx.ExecerContext, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.IsActive, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertUser: inserting %s: %w", u.Email, err)
	}
	return nil
}

// GetUser returns an active user by id, or domain.ErrNotFound.
func GetUser(ctx context.Context, q sqlx.QueryerContext, userID string) (*domain.User, error) {
	var row UserRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT id, email, first_name, is_active, created_at FROM users WHERE id = ? AND is_active = 1`,
		userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: querying %s: %w", userID, err)
	}
	return &domain.User{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}, nil
}

// InsertBankAccount creates a bank account for userID and returns its id.
func InsertBankAccount(ctx context.Context, q sqlx.ExecerContext, userID, name string, last4 *string) (string, error) {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx,
		`INSERT INTO bank_accounts (id, user_id, name, account_last4, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, name, ptrNullString(last4), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("InsertBankAccount: inserting %q: %w", name, err)
	}
	return id, nil
}

// BankAccountOwnedBy reports whether the bank account exists and belongs to userID.
func BankAccountOwnedBy(ctx context.Context, q sqlx.QueryerContext, bankAccountID, userID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM bank_accounts WHERE id = ? AND user_id = ?`, bankAccountID, userID)
	if err != nil {
		return false, fmt.Errorf("BankAccountOwnedBy: querying %s: %w", bankAccountID, err)
	}
	return n > 0, nil
}
