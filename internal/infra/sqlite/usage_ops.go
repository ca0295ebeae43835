package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// InsertAPIUsage appends one usage record. Rows are never updated afterwards.
func InsertAPIUsage(ctx context.Context, q sqlx.ExecerContext, u *domain.APIUsage) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO api_usage (
			id, service, operation, model_name, user_id, document_id,
			input_tokens, output_tokens, total_tokens, status_code, success,
			error_message, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Service, u.Operation, u.ModelName, ptrNullString(u.UserID), ptrNullString(u.DocumentID),
		u.InputTokens, u.OutputTokens, u.TotalTokens, u.StatusCode, u.Success,
		ptrNullString(u.ErrorMessage), u.DurationMS, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertAPIUsage: inserting usage row: %w", err)
	}
	return nil
}

// UsageSince sums a user's usage rows created at or after since.
func UsageSince(ctx context.Context, q sqlx.QueryerContext, userID string, since time.Time) (*domain.UsageSummary, error) {
	var s domain.UsageSummary
	err := sqlx.GetContext(ctx, q, &s, `
		SELECT
			COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(total_tokens), 0) AS total_tokens
		FROM api_usage
		WHERE user_id = ? AND created_at >= ?`,
		userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("UsageSince: summing usage for %s: %w", userID, err)
	}
	return &s, nil
}

// ListDocumentUsage returns the usage rows that reference a document, oldest first.
func ListDocumentUsage(ctx context.Context, q sqlx.QueryerContext, documentID string) ([]*domain.APIUsage, error) {
	var rows []UsageRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, service, operation, model_name, user_id, document_id,
			input_tokens, output_tokens, total_tokens, status_code, success,
			error_message, duration_ms, created_at
		FROM api_usage WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("ListDocumentUsage: %w", err)
	}

	out := make([]*domain.APIUsage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
