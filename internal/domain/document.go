package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DocumentKind classifies an uploaded file.
type DocumentKind string

const (
	DocumentKindBankStatement     DocumentKind = "bank_statement"
	DocumentKindReceipt           DocumentKind = "receipt"
	DocumentKindInvoiceAttachment DocumentKind = "invoice_attachment"
	DocumentKindOther             DocumentKind = "other"
)

// ParseDocumentKind normalizes s. An empty string maps to bank_statement.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch k := DocumentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return DocumentKindBankStatement, true
	case DocumentKindBankStatement, DocumentKindReceipt, DocumentKindInvoiceAttachment, DocumentKindOther:
		return k, true
	default:
		return "", false
	}
}

// ProcessingStatus is the lifecycle state of a Document.
//
//	pending -> processing -> completed
//	                     \-> failed
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// ParseProcessingStatus normalizes s and reports whether it is a known status.
func ParseProcessingStatus(s string) (ProcessingStatus, bool) {
	switch st := ProcessingStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further automatic transition can happen.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is the processing record of one uploaded file. The file bytes
// themselves are never stored.
type Document struct {
	ID                    string
	UserID                string
	Kind                  DocumentKind
	BankAccountID         *string
	OriginalFilename      string
	FileSize              int64
	MIMEType              string
	Status                ProcessingStatus
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ExtractionResult      *ExtractionResult
	ErrorMessage          *string
	EmailNotification     bool
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// TransactionCount is derived at read time.
	TransactionCount int
}

// ExtractionResult is the validated model output stored on a completed Document.
// It is untrusted until the user resubmits it for import.
type ExtractionResult struct {
	Transactions []ExtractedTransaction `json:"transactions"`
	Metadata     ExtractionMetadata     `json:"metadata"`
}

// ExtractedTransaction is one candidate row produced by the model.
type ExtractedTransaction struct {
	TransactionDate civil.Date          `json:"transaction_date"`
	Description     string              `json:"description"`
	Amount          decimal.Decimal     `json:"amount"`
	TransactionType TransactionType     `json:"transaction_type"`
	BalanceAfter    decimal.NullDecimal `json:"balance_after"`
	Category        Category            `json:"category"`
	Merchant        *string             `json:"merchant,omitempty"`
	AccountLast4    *string             `json:"account_last4,omitempty"`
}

// ExtractionMetadata is statement-level information the model detected.
type ExtractionMetadata struct {
	AccountHolder      *string `json:"account_holder,omitempty"`
	AccountNumberLast4 *string `json:"account_number_last4,omitempty"`
	StatementPeriod    *string `json:"statement_period,omitempty"`
	TotalTransactions  int     `json:"total_transactions"`
}

// Listing page bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// DocumentFilter narrows a document listing. Zero values mean no constraint.
type DocumentFilter struct {
	Kind     DocumentKind
	Statuses []ProcessingStatus
	Limit    int
	Offset   int
}

// Page returns the limit and offset a listing actually applies.
func (f DocumentFilter) Page() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
