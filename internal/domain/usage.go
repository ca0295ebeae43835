package domain

import "time"

// Service and operation identifiers recorded on APIUsage rows.
const (
	UsageServiceGemini               = "gemini"
	UsageOperationDocumentProcessing = "document_processing"
)

// APIUsage is one append-only record of a call to the extraction service.
type APIUsage struct {
	ID           string
	Service      string
	Operation    string
	ModelName    string
	UserID       *string
	DocumentID   *string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	StatusCode   int
	Success      bool
	ErrorMessage *string
	DurationMS   int64
	CreatedAt    time.Time
}

// UsageSummary aggregates a user's APIUsage rows over a period.
type UsageSummary struct {
	Requests     int `db:"requests" json:"requests"`
	Failed       int `db:"failed" json:"failed"`
	InputTokens  int `db:"input_tokens" json:"input_tokens"`
	OutputTokens int `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int `db:"total_tokens" json:"total_tokens"`
}

// User holds the contact details the pipeline needs for notifications.
type User struct {
	ID        string
	Email     string
	FirstName string
	IsActive  bool
	CreatedAt time.Time
}
