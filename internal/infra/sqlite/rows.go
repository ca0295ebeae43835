package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/shopspring/decimal"
)

// DocumentRow mirrors the documents table plus the derived transaction count.
type DocumentRow struct {
	ID                    string         `db:"id"`
	UserID                string         `db:"user_id"`
	BankAccountID         sql.NullString `db:"bank_account_id"`
	DocumentType          string         `db:"document_type"`
	OriginalFilename      string         `db:"original_filename"`
	FileSize              int64          `db:"file_size"`
	MIMEType              string         `db:"mime_type"`
	ProcessingStatus      string         `db:"processing_status"`
	ProcessingStartedAt   sql.NullTime   `db:"processing_started_at"`
	ProcessingCompletedAt sql.NullTime   `db:"processing_completed_at"`
	ExtractionResult      sql.NullString `db:"extraction_result"`
	ErrorMessage          sql.NullString `db:"error_message"`
	EmailNotification     bool           `db:"email_notification_requested"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
	TransactionCount      int            `db:"transaction_count"`
}

const documentColumns = `
	d.id, d.user_id, d.bank_account_id, d.document_type, d.original_filename,
	d.file_size, d.mime_type, d.processing_status, d.processing_started_at,
	d.processing_completed_at, d.extraction_result, d.error_message,
	d.email_notification_requested, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM transactions t WHERE t.document_id = d.id) AS transaction_count`

func (r *DocumentRow) toDomain() (*domain.Document, error) {
	doc := &domain.Document{
		ID:                    r.ID,
		UserID:                r.UserID,
		Kind:                  domain.DocumentKind(r.DocumentType),
		BankAccountID:         nullStringPtr(r.BankAccountID),
		OriginalFilename:      r.OriginalFilename,
		FileSize:              r.FileSize,
		MIMEType:              r.MIMEType,
		Status:                domain.ProcessingStatus(r.ProcessingStatus),
		ProcessingStartedAt:   nullTimePtr(r.ProcessingStartedAt),
		ProcessingCompletedAt: nullTimePtr(r.ProcessingCompletedAt),
		ErrorMessage:          nullStringPtr(r.ErrorMessage),
		EmailNotification:     r.EmailNotification,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		TransactionCount:      r.TransactionCount,
	}

	if r.ExtractionResult.Valid {
		var result domain.ExtractionResult
		if err := json.Unmarshal([]byte(r.ExtractionResult.String), &result); err != nil {
			return nil, fmt.Errorf("decoding extraction result of document %s: %w", r.ID, err)
		}
		doc.ExtractionResult = &result
	}

	return doc, nil
}

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	ID                 string              `db:"id"`
	UserID             string              `db:"user_id"`
	DocumentID         sql.NullString      `db:"document_id"`
	BankAccountID      sql.NullString      `db:"bank_account_id"`
	TransactionDate    string              `db:"transaction_date"`
	Description        string              `db:"description"`
	Amount             decimal.Decimal     `db:"amount"`
	TransactionType    string              `db:"transaction_type"`
	BalanceAfter       decimal.NullDecimal `db:"balance_after"`
	Category           string              `db:"category"`
	Merchant           sql.NullString      `db:"merchant"`
	AccountLast4       sql.NullString      `db:"account_last4"`
	Notes              sql.NullString      `db:"notes"`
	SourceDocumentName sql.NullString      `db:"source_document_name"`
	IsManuallyAdded    bool                `db:"is_manually_added"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
}

const transactionColumns = `
	id, user_id, document_id, bank_account_id, transaction_date, description,
	amount, transaction_type, balance_after, category, merchant, account_last4,
	notes, source_document_name, is_manually_added, created_at, updated_at`

func newTransactionRow(t *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		ID:                 t.ID,
		UserID:             t.UserID,
		DocumentID:         ptrNullString(t.DocumentID),
		BankAccountID:      ptrNullString(t.BankAccountID),
		TransactionDate:    t.TransactionDate.String(),
		Description:        t.Description,
		Amount:             t.Amount.Round(domain.MoneyPlaces),
		TransactionType:    string(t.TransactionType),
		BalanceAfter:       roundNullDecimal(t.BalanceAfter),
		Category:           string(t.Category),
		Merchant:           ptrNullString(t.Merchant),
		AccountLast4:       ptrNullString(t.AccountLast4),
		Notes:              ptrNullString(t.Notes),
		SourceDocumentName: ptrNullString(t.SourceDocumentName),
		IsManuallyAdded:    t.IsManuallyAdded,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (r *TransactionRow) toDomain() (*domain.Transaction, error) {
	date, err := civil.ParseDate(r.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("parsing date of transaction %s: %w", r.ID, err)
	}
	return &domain.Transaction{
		ID:                 r.ID,
		UserID:             r.UserID,
		DocumentID:         nullStringPtr(r.DocumentID),
		BankAccountID:      nullStringPtr(r.BankAccountID),
		TransactionDate:    date,
		Description:        r.Description,
		Amount:             r.Amount,
		TransactionType:    domain.TransactionType(r.TransactionType),
		BalanceAfter:       r.BalanceAfter,
		Category:           domain.Category(r.Category),
		Merchant:           nullStringPtr(r.Merchant),
		AccountLast4:       nullStringPtr(r.AccountLast4),
		Notes:              nullStringPtr(r.Notes),
		SourceDocumentName: nullStringPtr(r.SourceDocumentName),
		IsManuallyAdded:    r.IsManuallyAdded,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}

// UsageRow mirrors the api_usage table.
type UsageRow struct {
	ID           string         `db:"id"`
	Service      string         `db:"service"`
	Operation    string         `db:"operation"`
	ModelName    string         `db:"model_name"`
	UserID       sql.NullString `db:"user_id"`
	DocumentID   sql.NullString `db:"document_id"`
	InputTokens  int            `db:"input_tokens"`
	OutputTokens int            `db:"output_tokens"`
	TotalTokens  int            `db:"total_tokens"`
	StatusCode   int            `db:"status_code"`
	Success      bool           `db:"success"`
	ErrorMessage sql.NullString `db:"error_message"`
	DurationMS   int64          `db:"duration_ms"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r *UsageRow) toDomain() *domain.APIUsage {
	return &domain.APIUsage{
		ID:           r.ID,
		Service:      r.Service,
		Operation:    r.Operation,
		ModelName:    r.ModelName,
		UserID:       nullStringPtr(r.UserID),
		DocumentID:   nullStringPtr(r.DocumentID),
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		TotalTokens:  r.TotalTokens,
		StatusCode:   r.StatusCode,
		Success:      r.Success,
		ErrorMessage: nullStringPtr(r.ErrorMessage),
		DurationMS:   r.DurationMS,
		CreatedAt:    r.CreatedAt,
	}
}

// UserRow mirrors the users table.
type UserRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	FirstName string    `db:"first_name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func roundNullDecimal(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NullDecimal{Decimal: d.Decimal.Round(domain.MoneyPlaces), Valid: true}
}
