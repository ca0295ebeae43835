// Package bigquery mirrors API usage records into BigQuery for reporting.
// SQLite stays the source of truth; the mirror is best effort.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"google.golang.org/api/googleapi"
)

// UsageExporter holds a shared BigQuery client for the usage mirror table.
type UsageExporter struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewUsageExporter creates a client for project and targets dataset.table.
func NewUsageExporter(ctx context.Context, project, dataset, table string) (*UsageExporter, error) {
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("NewUsageExporter: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewUsageExporter: creating client: %w", err)
	}
	return &UsageExporter{client: client, dataset: dataset, table: table}, nil
}

// Close closes the BigQuery client connection.
func (e *UsageExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// RecordUsage streams u into the mirror table.
func (e *UsageExporter) RecordUsage(ctx context.Context, u *domain.APIUsage) error {
	return InsertUsageWithClient(ctx, e.client, e.dataset, e.table, NewUsageRow(u))
}

// DailyUsage returns per-day totals for the last days days.
func (e *UsageExporter) DailyUsage(ctx context.Context, days int) ([]*DailyUsageRow, error) {
	return QueryDailyUsageWithClient(ctx, e.client, e.dataset, e.table, days)
}

// EnsureUsageTable creates the mirror table, partitioned by day on created_ts,
// when it does not exist yet. It reports whether the table was created.
func (e *UsageExporter) EnsureUsageTable(ctx context.Context) (bool, error) {
	table := e.client.Dataset(e.dataset).Table(e.table)
	if _, err := table.Metadata(ctx); err == nil {
		return false, nil
	} else if !isNotFound(err) {
		return false, fmt.Errorf("EnsureUsageTable: reading metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(UsageRow{})
	if err != nil {
		return false, fmt.Errorf("EnsureUsageTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "created_ts"},
		Description:      "Mirror of api_usage rows written by the extraction client",
	}
	if err := table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("EnsureUsageTable: creating %s.%s: %w", e.dataset, e.table, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
