package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertUsageWithClient streams one usage row into the mirror table.
func InsertUsageWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, row *UsageRow) error {
	if row.UsageID == "" {
		return fmt.Errorf("InsertUsageWithClient: usage_id is required")
	}
	inserter := client.Dataset(dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertUsageWithClient: inserting %s: %w", row.UsageID, err)
	}
	return nil
}

// dailyUsageQuery builds the per-day aggregation over the last @days days.
func dailyUsageQuery(project, dataset, table string) string {
	return fmt.Sprintf(`
		SELECT
			DATE(created_ts) AS day,
			COUNT(*) AS requests,
			COUNTIF(NOT success) AS failed,
			SUM(input_tokens) AS input_tokens,
			SUM(output_tokens) AS output_tokens,
			SUM(total_tokens) AS total_tokens
		FROM `+"`%s.%s.%s`"+`
		WHERE created_ts >= TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL @days DAY)
		GROUP BY day
		ORDER BY day DESC
	`, project, dataset, table)
}

// QueryDailyUsageWithClient returns daily totals for the last days days, newest first.
func QueryDailyUsageWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, days int) ([]*DailyUsageRow, error) {
	if days < 1 {
		return nil, fmt.Errorf("QueryDailyUsageWithClient: days must be positive, got %d", days)
	}

	q := client.Query(dailyUsageQuery(client.Project(), dataset, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "days", Value: days},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryDailyUsageWithClient: reading query: %w", err)
	}

	var rows []*DailyUsageRow
	for {
		var row DailyUsageRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryDailyUsageWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
