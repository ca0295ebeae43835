package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// InsertTransaction writes one transaction row. ID and timestamps are filled
// in when empty.
func InsertTransaction(ctx context.Context, q sqlx.ExtContext, t *domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Category == "" {
		t.Category = domain.CategoryUncategorized
	}

	row := newTransactionRow(t)
	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (
			:id, :user_id, :document_id, :bank_account_id, :transaction_date, :description,
			:amount, :transaction_type, :balance_after, :category, :merchant, :account_last4,
			:notes, :source_document_name, :is_manually_added, :created_at, :updated_at
		)`, row)
	if err != nil {
		return fmt.Errorf("InsertTransaction: inserting transaction %s: %w", t.ID, err)
	}
	return nil
}

// DeleteDocumentTransactions removes every transaction a user has tied to a
// document and returns how many rows were removed.
func DeleteDocumentTransactions(ctx context.Context, q sqlx.ExecerContext, documentID, userID string) (int, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM transactions WHERE document_id = ? AND user_id = ?`, documentID, userID)
	if err != nil {
		return 0, fmt.Errorf("DeleteDocumentTransactions: deleting rows for %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteDocumentTransactions: reading affected rows: %w", err)
	}
	return int(n), nil
}

// ListDocumentTransactions returns a user's transactions for a document in
// statement order.
func ListDocumentTransactions(ctx context.Context, q sqlx.QueryerContext, documentID, userID string) ([]*domain.Transaction, error) {
	var rows []TransactionRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE document_id = ? AND user_id = ?
		ORDER BY transaction_date, created_at, id`,
		documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("ListDocumentTransactions: querying %s: %w", documentID, err)
	}
	return transactionsFromRows(rows)
}

// GetTransaction returns one transaction owned by userID, or domain.ErrNotFound.
// Deleted documents leave their transactions reachable here.
func GetTransaction(ctx context.Context, q sqlx.QueryerContext, transactionID, userID string) (*domain.Transaction, error) {
	var rows []TransactionRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`,
		transactionID, userID)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: querying %s: %w", transactionID, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0].toDomain()
}

func transactionsFromRows(rows []TransactionRow) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
