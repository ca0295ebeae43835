package handlers

import (
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/shopspring/decimal"
)

type documentResponse struct {
	ID                         string     `json:"id"`
	DocumentType               string     `json:"document_type"`
	BankAccountID              *string    `json:"bank_account_id"`
	OriginalFilename           string     `json:"original_filename"`
	FileSize                   int64      `json:"file_size"`
	MIMEType                   string     `json:"mime_type"`
	ProcessingStatus           string     `json:"processing_status"`
	ProcessingStartedAt        *time.Time `json:"processing_started_at"`
	ProcessingCompletedAt      *time.Time `json:"processing_completed_at"`
	ErrorMessage               *string    `json:"error_message"`
	EmailNotificationRequested bool       `json:"email_notification_requested"`
	TransactionsCount          int        `json:"transactions_count"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

func toDocumentResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:                         d.ID,
		DocumentType:               string(d.Kind),
		BankAccountID:              d.BankAccountID,
		OriginalFilename:           d.OriginalFilename,
		FileSize:                   d.FileSize,
		MIMEType:                   d.MIMEType,
		ProcessingStatus:           string(d.Status),
		ProcessingStartedAt:        d.ProcessingStartedAt,
		ProcessingCompletedAt:      d.ProcessingCompletedAt,
		ErrorMessage:               d.ErrorMessage,
		EmailNotificationRequested: d.EmailNotification,
		TransactionsCount:          d.TransactionCount,
		CreatedAt:                  d.CreatedAt,
		UpdatedAt:                  d.UpdatedAt,
	}
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type extractedTransactionResponse struct {
	TransactionDate string              `json:"transaction_date"`
	Description     string              `json:"description"`
	Amount          decimal.Decimal     `json:"amount"`
	TransactionType string              `json:"transaction_type"`
	BalanceAfter    decimal.NullDecimal `json:"balance_after"`
	Category        string              `json:"category"`
	Merchant        *string             `json:"merchant"`
	AccountLast4    *string             `json:"account_last4"`
}

type extractionMetadataResponse struct {
	AccountHolder      *string `json:"account_holder"`
	AccountNumberLast4 *string `json:"account_number_last4"`
	StatementPeriod    *string `json:"statement_period"`
	TotalTransactions  int     `json:"total_transactions"`
}

type extractionResponse struct {
	DocumentID       string                         `json:"document_id"`
	OriginalFilename string                         `json:"original_filename"`
	Transactions     []extractedTransactionResponse `json:"transactions"`
	Metadata         extractionMetadataResponse     `json:"metadata"`
}

func toExtractionResponse(d *domain.Document) extractionResponse {
	resp := extractionResponse{
		DocumentID:       d.ID,
		OriginalFilename: d.OriginalFilename,
		Transactions:     []extractedTransactionResponse{},
	}
	if d.ExtractionResult == nil {
		return resp
	}

	for _, t := range d.ExtractionResult.Transactions {
		resp.Transactions = append(resp.Transactions, extractedTransactionResponse{
			TransactionDate: t.TransactionDate.String(),
			Description:     t.Description,
			Amount:          t.Amount,
			TransactionType: string(t.TransactionType),
			BalanceAfter:    t.BalanceAfter,
			Category:        string(t.Category),
			Merchant:        t.Merchant,
			AccountLast4:    t.AccountLast4,
		})
	}
	m := d.ExtractionResult.Metadata
	resp.Metadata = extractionMetadataResponse{
		AccountHolder:      m.AccountHolder,
		AccountNumberLast4: m.AccountNumberLast4,
		StatementPeriod:    m.StatementPeriod,
		TotalTransactions:  m.TotalTransactions,
	}
	return resp
}

type transactionResponse struct {
	ID                 string              `json:"id"`
	DocumentID         *string             `json:"document_id"`
	BankAccountID      *string             `json:"bank_account_id"`
	TransactionDate    string              `json:"transaction_date"`
	Description        string              `json:"description"`
	Amount             decimal.Decimal     `json:"amount"`
	TransactionType    string              `json:"transaction_type"`
	BalanceAfter       decimal.NullDecimal `json:"balance_after"`
	Category           string              `json:"category"`
	Merchant           *string             `json:"merchant"`
	AccountLast4       *string             `json:"account_last4"`
	Notes              *string             `json:"notes"`
	SourceDocumentName *string             `json:"source_document_name"`
	IsManuallyAdded    bool                `json:"is_manually_added"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func toTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID,
		DocumentID:         t.DocumentID,
		BankAccountID:      t.BankAccountID,
		TransactionDate:    t.TransactionDate.String(),
		Description:        t.Description,
		Amount:             t.Amount,
		TransactionType:    string(t.TransactionType),
		BalanceAfter:       t.BalanceAfter,
		Category:           string(t.Category),
		Merchant:           t.Merchant,
		AccountLast4:       t.AccountLast4,
		Notes:              t.Notes,
		SourceDocumentName: t.SourceDocumentName,
		IsManuallyAdded:    t.IsManuallyAdded,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

type bulkImportResponse struct {
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
	ReplacedCount int    `json:"replaced_count"`
	DocumentID    string `json:"document_id"`
}

type usageResponse struct {
	Date         string `json:"date"`
	Requests     int    `json:"requests"`
	Failed       int    `json:"failed"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
}
