package bigquery

import (
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
)

func TestNewUsageRow(t *testing.T) {
	user := "user-1"
	msg := "Gemini API request timed out"
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	row := NewUsageRow(&domain.APIUsage{
		ID:           "usage-1",
		Service:      domain.UsageServiceGemini,
		Operation:    domain.UsageOperationDocumentProcessing,
		ModelName:    "gemini-2.5-flash",
		UserID:       &user,
		InputTokens:  10,
		OutputTokens: 5,
		TotalTokens:  15,
		StatusCode:   504,
		ErrorMessage: &msg,
		DurationMS:   180000,
		CreatedAt:    created,
	})

	if !row.UserID.Valid || row.UserID.StringVal != user {
		t.Errorf("UserID = %+v, want %q", row.UserID, user)
	}
	if row.DocumentID.Valid {
		t.Errorf("DocumentID = %+v, want null", row.DocumentID)
	}
	if row.CreatedTS.Location() != time.UTC || !row.CreatedTS.Equal(created) {
		t.Errorf("CreatedTS = %v, want %v in UTC", row.CreatedTS, created)
	}

	values, insertID, err := row.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if insertID != "usage-1" {
		t.Errorf("insertID = %q, want usage-1", insertID)
	}
	if values["status_code"] != int64(504) || values["success"] != false {
		t.Errorf("values = %v", values)
	}
}

func TestDailyUsageQuery(t *testing.T) {
	q := dailyUsageQuery("proj", "fintrack", "api_usage")
	for _, want := range []string{"`proj.fintrack.api_usage`", "@days", "GROUP BY day", "COUNTIF(NOT success)"} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}
