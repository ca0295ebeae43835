package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/fintrack-api/internal/domain"
)

// UsageRow mirrors one api_usage record.
type UsageRow struct {
	UsageID   string `bigquery:"usage_id"`  // REQUIRED
	Service   string `bigquery:"service"`   // REQUIRED
	Operation string `bigquery:"operation"` // REQUIRED
	ModelName string `bigquery:"model_name"`

	UserID     bigquery.NullString `bigquery:"user_id"`     // NULLABLE
	DocumentID bigquery.NullString `bigquery:"document_id"` // NULLABLE

	InputTokens  int64 `bigquery:"input_tokens"`
	OutputTokens int64 `bigquery:"output_tokens"`
	TotalTokens  int64 `bigquery:"total_tokens"`

	StatusCode   int64               `bigquery:"status_code"`
	Success      bool                `bigquery:"success"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
	DurationMS   int64               `bigquery:"duration_ms"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// Save implements bigquery.ValueSaver. The usage ID doubles as the insert ID
// so a retried streaming insert does not duplicate the row.
func (r *UsageRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"usage_id":      r.UsageID,
		"service":       r.Service,
		"operation":     r.Operation,
		"model_name":    r.ModelName,
		"user_id":       r.UserID,
		"document_id":   r.DocumentID,
		"input_tokens":  r.InputTokens,
		"output_tokens": r.OutputTokens,
		"total_tokens":  r.TotalTokens,
		"status_code":   r.StatusCode,
		"success":       r.Success,
		"error_message": r.ErrorMessage,
		"duration_ms":   r.DurationMS,
		"created_ts":    r.CreatedTS,
	}, r.UsageID, nil
}

// NewUsageRow converts a domain usage record into its mirror row.
func NewUsageRow(u *domain.APIUsage) *UsageRow {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &UsageRow{
		UsageID:      u.ID,
		Service:      u.Service,
		Operation:    u.Operation,
		ModelName:    u.ModelName,
		UserID:       nullString(u.UserID),
		DocumentID:   nullString(u.DocumentID),
		InputTokens:  int64(u.InputTokens),
		OutputTokens: int64(u.OutputTokens),
		TotalTokens:  int64(u.TotalTokens),
		StatusCode:   int64(u.StatusCode),
		Success:      u.Success,
		ErrorMessage: nullString(u.ErrorMessage),
		DurationMS:   u.DurationMS,
		CreatedTS:    created.UTC(),
	}
}

// DailyUsageRow is one day of aggregated usage.
type DailyUsageRow struct {
	Day          civil.Date `bigquery:"day"`
	Requests     int64      `bigquery:"requests"`
	Failed       int64      `bigquery:"failed"`
	InputTokens  int64      `bigquery:"input_tokens"`
	OutputTokens int64      `bigquery:"output_tokens"`
	TotalTokens  int64      `bigquery:"total_tokens"`
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}
