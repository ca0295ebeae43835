package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateDocumentParams carries the fields known at upload time.
type CreateDocumentParams struct {
	UserID            string
	Kind              domain.DocumentKind
	OriginalFilename  string
	FileSize          int64
	MIMEType          string
	BankAccountID     *string
	EmailNotification bool
}

// InsertDocument creates a Document in the pending state.
func InsertDocument(ctx context.Context, q sqlx.ExtContext, p CreateDocumentParams) (*domain.Document, error) {
	if p.UserID == "" || p.OriginalFilename == "" || p.MIMEType == "" {
		return nil, fmt.Errorf("InsertDocument: user, filename and mime type are required")
	}
	if p.Kind == "" {
		p.Kind = domain.DocumentKindBankStatement
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:                uuid.New().String(),
		UserID:            p.UserID,
		Kind:              p.Kind,
		BankAccountID:     p.BankAccountID,
		OriginalFilename:  p.OriginalFilename,
		FileSize:          p.FileSize,
		MIMEType:          p.MIMEType,
		Status:            domain.StatusPending,
		EmailNotification: p.EmailNotification,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (
			id, user_id, bank_account_id, document_type, original_filename,
			file_size, mime_type, processing_status, email_notification_requested,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, ptrNullString(doc.BankAccountID), string(doc.Kind), doc.OriginalFilename,
		doc.FileSize, doc.MIMEType, string(doc.Status), doc.EmailNotification,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("InsertDocument: inserting row: %w", err)
	}

	return doc, nil
}

// GetDocument returns the document owned by userID, or domain.ErrNotFound.
func GetDocument(ctx context.Context, q sqlx.QueryerContext, documentID, userID string) (*domain.Document, error) {
	var row DocumentRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+documentColumns+` FROM documents d WHERE d.id = ? AND d.user_id = ?`,
		documentID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDocument: querying document %s: %w", documentID, err)
	}
	return row.toDomain()
}

// UpdateDocumentStatus moves a document to status and stamps the matching
// timestamp. It is not owner-scoped. A nil errorMessage leaves the stored
// message untouched. Leaving the completed state clears any stored result.
func UpdateDocumentStatus(ctx context.Context, q sqlx.ExecerContext, documentID string, status domain.ProcessingStatus, errorMessage *string) error {
	if _, ok := domain.ParseProcessingStatus(string(status)); !ok {
		return fmt.Errorf("UpdateDocumentStatus: unknown status %q", status)
	}

	now := time.Now().UTC()
	sets := []string{"processing_status = ?", "updated_at = ?"}
	args := []interface{}{string(status), now}

	switch status {
	case domain.StatusProcessing:
		sets = append(sets, "processing_started_at = ?")
		args = append(args, now)
	case domain.StatusCompleted, domain.StatusFailed:
		sets = append(sets, "processing_completed_at = ?")
		args = append(args, now)
	}
	if status != domain.StatusCompleted {
		sets = append(sets, "extraction_result = NULL")
	}
	if errorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *errorMessage)
	}
	args = append(args, documentID)

	res, err := q.ExecContext(ctx,
		`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("UpdateDocumentStatus: updating document %s: %w", documentID, err)
	}
	return requireRow(res, documentID)
}

// SetDocumentExtractionResult stores result as JSON without changing status.
func SetDocumentExtractionResult(ctx context.Context, q sqlx.ExecerContext, documentID string, result *domain.ExtractionResult) error {
	if result == nil {
		return fmt.Errorf("SetDocumentExtractionResult: result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("SetDocumentExtractionResult: encoding result: %w", err)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE documents SET extraction_result = ?, updated_at = ? WHERE id = ?`,
		string(payload), time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("SetDocumentExtractionResult: updating document %s: %w", documentID, err)
	}
	return requireRow(res, documentID)
}

// DeleteDocument removes a document owned by userID. Linked transactions keep
// their rows; their document_id is nulled by the foreign key.
func DeleteDocument(ctx context.Context, q sqlx.ExecerContext, documentID, userID string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, documentID, userID)
	if err != nil {
		return fmt.Errorf("DeleteDocument: deleting document %s: %w", documentID, err)
	}
	return requireRow(res, documentID)
}

// ListDocuments returns one page of a user's documents, newest first, and the
// total number of documents matching the filter.
func ListDocuments(ctx context.Context, q sqlx.ExtContext, userID string, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	where := []string{"d.user_id = ?"}
	args := []interface{}{userID}

	if filter.Kind != "" {
		where = append(where, "d.document_type = ?")
		args = append(args, string(filter.Kind))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "d.processing_status IN (?)")
		args = append(args, statuses)
	}
	whereSQL := strings.Join(where, " AND ")

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM documents d WHERE `+whereSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDocuments: building count query: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, q.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("ListDocuments: counting documents: %w", err)
	}

	limit, offset := filter.Page()
	listQuery, listArgs, err := sqlx.In(
		`SELECT `+documentColumns+` FROM documents d WHERE `+whereSQL+
			` ORDER BY d.created_at DESC, d.id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDocuments: building list query: %w", err)
	}

	var rows []DocumentRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("ListDocuments: querying documents: %w", err)
	}

	docs := make([]*domain.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("ListDocuments: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, total, nil
}

// FailInterruptedDocuments marks every pending or processing document as
// failed. Upload bytes live only in memory, so such documents cannot finish
// after a restart.
func FailInterruptedDocuments(ctx context.Context, q sqlx.ExecerContext, message string) (int64, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		UPDATE documents
		SET processing_status = ?, error_message = ?, processing_completed_at = ?,
			extraction_result = NULL, updated_at = ?
		WHERE processing_status IN (?, ?)`,
		string(domain.StatusFailed), message, now, now,
		string(domain.StatusPending), string(domain.StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("FailInterruptedDocuments: updating documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("FailInterruptedDocuments: reading affected rows: %w", err)
	}
	return n, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows for %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
