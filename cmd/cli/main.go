package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/fintrack-api/internal/config"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/extraction"
	"github.com/dvloznov/fintrack-api/internal/gcs"
	infraBQ "github.com/dvloznov/fintrack-api/internal/infra/bigquery"
	"github.com/dvloznov/fintrack-api/internal/infra/sqlite"
	"github.com/dvloznov/fintrack-api/internal/logger"
	"github.com/dvloznov/fintrack-api/internal/upload"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	switch os.Args[1] {
	case "migrate":
		runMigrate(cfg, log)
	case "extract":
		runExtract(cfg, log)
	case "usage-report":
		runUsageReport(cfg, log)
	case "seed-user":
		runSeedUser(cfg, log)
	case "inspect":
		runInspect(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("FinTrack CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  migrate       Apply database migrations")
	fmt.Println("  extract       Run statement extraction on a local file or GCS object")
	fmt.Println("  usage-report  Show daily model usage from the BigQuery mirror")
	fmt.Println("  seed-user     Create a local user for development")
	fmt.Println("  inspect       Inspect a document, its transactions and usage")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runMigrate(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path")
	withBigQuery := fs.Bool("bigquery", false, "Also create the BigQuery usage mirror table")
	fs.Parse(os.Args[2:])

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("Migration failed")
	}
	defer store.Close()

	fmt.Printf("Migrations applied to %s\n", *dbPath)

	if !*withBigQuery {
		return
	}
	if !cfg.UsageExportEnabled() {
		log.Fatal().Msg("Error: BIGQUERY_PROJECT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	exporter, err := infraBQ.NewUsageExporter(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryUsageTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer exporter.Close()

	created, err := exporter.EnsureUsageTable(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create usage table")
	}
	if created {
		fmt.Printf("Created %s.%s\n", cfg.BigQueryDataset, cfg.BigQueryUsageTable)
	} else {
		fmt.Printf("%s.%s already exists\n", cfg.BigQueryDataset, cfg.BigQueryUsageTable)
	}
}

func runExtract(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	filePath := fs.String("file", "", "Local path of the statement PDF")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the statement PDF")
	mimeType := fs.String("mime", "", "MIME type (defaults to one derived from the file extension)")
	recordUsage := fs.Bool("record-usage", false, "Record API usage in the database (and BigQuery when configured)")
	userID := fs.String("user", "", "User ID to attribute usage to")
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path, used with -record-usage")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Error: exactly one of -file or -gcs-uri is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ExtractionTimeout+time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		data     []byte
		filename string
		err      error
	)
	if *filePath != "" {
		filename = filepath.Base(*filePath)
		data, err = os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
		}
	} else {
		filename = gcs.FilenameFromURI(*gcsURI)
		reader, err := gcs.NewReader(ctx, upload.MaxFileSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer reader.Close()
		data, err = reader.FetchFromGCS(ctx, *gcsURI)
		if err != nil {
			log.Fatal().Err(err).Str("gcs_uri", *gcsURI).Msg("Failed to fetch object")
		}
	}

	declared := *mimeType
	if declared == "" {
		declared = mime.TypeByExtension(filepath.Ext(filename))
	}
	normalized, err := upload.Validate(upload.File{Filename: filename, MIMEType: declared, Data: data})
	if err != nil {
		log.Fatal().Err(err).Str("filename", filename).Msg("File rejected")
	}

	var usage extraction.UsageRecorder
	if *recordUsage {
		store, err := sqlite.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		defer store.Close()
		recorders := extraction.MultiRecorder{store}
		if cfg.UsageExportEnabled() {
			exporter, err := infraBQ.NewUsageExporter(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryUsageTable)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create usage exporter")
			}
			defer exporter.Close()
			recorders = append(recorders, exporter)
		}
		usage = recorders
	}

	generator, err := extraction.NewGeminiGenerator(ctx, extraction.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	client := extraction.NewClient(generator, usage, cfg.ExtractionTimeout, log)

	log.Info().Str("filename", filename).Int("bytes", len(data)).Str("model", generator.ModelName()).Msg("Starting extraction")

	result, err := client.Extract(ctx, extraction.Request{
		Data:     data,
		Filename: filename,
		MIMEType: normalized,
		UserID:   *userID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(out))
}

func runUsageReport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("usage-report", flag.ExitOnError)
	days := fs.Int("days", 7, "Number of days to report")
	fs.Parse(os.Args[2:])

	if !cfg.UsageExportEnabled() {
		log.Fatal().Msg("Error: BIGQUERY_PROJECT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exporter, err := infraBQ.NewUsageExporter(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryUsageTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer exporter.Close()

	rows, err := exporter.DailyUsage(ctx, *days)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query usage")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DAY\tREQUESTS\tFAILED\tINPUT\tOUTPUT\tTOTAL\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", r.Day, r.Requests, r.Failed, r.InputTokens, r.OutputTokens, r.TotalTokens)
	}
	tw.Flush()

	if len(rows) == 0 {
		fmt.Printf("No usage recorded in the last %d days.\n", *days)
	}
}

func runSeedUser(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("seed-user", flag.ExitOnError)
	id := fs.String("id", "", "User ID (generated when empty)")
	email := fs.String("email", "", "Email address")
	name := fs.String("name", "", "First name")
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *email == "" {
		log.Fatal().Msg("Error: -email is required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	user := &domain.User{ID: *id, Email: *email, FirstName: *name, IsActive: true}
	if err := store.CreateUser(context.Background(), user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("Created user %s (%s)\n", user.ID, user.Email)
}

func runInspect(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	documentID := fs.String("id", "", "Document ID")
	userID := fs.String("user", "", "Owner user ID")
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *documentID == "" || *userID == "" {
		log.Fatal().Msg("Error: -id and -user are required")
	}

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	ctx := context.Background()
	doc, err := store.GetDocument(ctx, *documentID, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load document")
	}

	fmt.Println("=== Document ===")
	fmt.Printf("ID:       %s\n", doc.ID)
	fmt.Printf("File:     %s (%d bytes, %s)\n", doc.OriginalFilename, doc.FileSize, doc.MIMEType)
	fmt.Printf("Type:     %s\n", doc.Kind)
	fmt.Printf("Status:   %s\n", doc.Status)
	fmt.Printf("Created:  %s\n", doc.CreatedAt.Format(time.RFC3339))
	if doc.ErrorMessage != nil {
		fmt.Printf("Error:    %s\n", *doc.ErrorMessage)
	}
	if doc.ExtractionResult != nil {
		fmt.Printf("Extracted: %d candidate transactions\n", len(doc.ExtractionResult.Transactions))
	}

	transactions, err := store.ListDocumentTransactions(ctx, doc.ID, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}
	fmt.Printf("\n=== Transactions (%d) ===\n", len(transactions))
	for i, txn := range transactions {
		fmt.Printf("\n%d. %s\n", i+1, txn.Description)
		fmt.Printf("   Date:     %s\n", txn.TransactionDate)
		fmt.Printf("   Amount:   %s %s\n", txn.Amount.StringFixed(domain.MoneyPlaces), txn.TransactionType)
		fmt.Printf("   Category: %s\n", txn.Category)
		if txn.BalanceAfter.Valid {
			fmt.Printf("   Balance:  %s\n", txn.BalanceAfter.Decimal.StringFixed(domain.MoneyPlaces))
		}
	}

	usage, err := store.ListDocumentUsage(ctx, doc.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load usage")
	}
	fmt.Printf("\n=== API calls (%d) ===\n", len(usage))
	for _, u := range usage {
		fmt.Printf("%s  %s  status=%d success=%t tokens=%d duration=%dms\n",
			u.CreatedAt.Format(time.RFC3339), u.ModelName, u.StatusCode, u.Success, u.TotalTokens, u.DurationMS)
	}
}
