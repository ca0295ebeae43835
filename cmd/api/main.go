package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fintrack-api/internal/api"
	"github.com/dvloznov/fintrack-api/internal/config"
	"github.com/dvloznov/fintrack-api/internal/extraction"
	infraBQ "github.com/dvloznov/fintrack-api/internal/infra/bigquery"
	"github.com/dvloznov/fintrack-api/internal/infra/sqlite"
	"github.com/dvloznov/fintrack-api/internal/importer"
	"github.com/dvloznov/fintrack-api/internal/jobs/inmemory"
	"github.com/dvloznov/fintrack-api/internal/logger"
	"github.com/dvloznov/fintrack-api/internal/mailer"
	"github.com/dvloznov/fintrack-api/internal/notify"
	"github.com/dvloznov/fintrack-api/internal/pipeline"
)

const interruptedMessage = "Processing interrupted by server restart"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	var (
		port   = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		dbPath = flag.String("db", cfg.DatabasePath, "SQLite database path (or set DATABASE_PATH env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("Failed to open database")
	}
	defer store.Close()

	// Upload bytes only ever lived in the previous process.
	if n, err := store.FailInterruptedDocuments(ctx, interruptedMessage); err != nil {
		log.Fatal().Err(err).Msg("Failed to fail interrupted documents")
	} else if n > 0 {
		log.Warn().Int64("documents", n).Msg("Marked interrupted documents as failed")
	}

	generator, err := extraction.NewGeminiGenerator(ctx, extraction.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	usage := extraction.MultiRecorder{store}
	if cfg.UsageExportEnabled() {
		exporter, err := infraBQ.NewUsageExporter(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryUsageTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create usage exporter")
		}
		defer exporter.Close()
		usage = append(usage, exporter)
		log.Info().Str("project", cfg.BigQueryProject).Str("table", cfg.BigQueryUsageTable).Msg("Mirroring API usage to BigQuery")
	}
	extractor := extraction.NewClient(generator, usage, cfg.ExtractionTimeout, log)

	var mail mailer.Sender = mailer.NopSender{}
	if cfg.EmailEnabled() {
		smtpSender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			FrontendURL: cfg.FrontendURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure SMTP")
		}
		mail = smtpSender
	} else {
		log.Warn().Msg("No SMTP host configured - completion emails are disabled")
	}

	hub := notify.NewHub(log, cfg.AllowedOrigins...)
	processor := pipeline.NewProcessor(store, extractor, store, hub, mail, log)

	// Initialize job infrastructure
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, log)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	handler := api.NewRouter(api.Deps{
		Store:          store,
		Publisher:      jobQueue,
		Importer:       importer.NewReconciler(store, log),
		Sockets:        hub,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight extractions finish; anything still queued is failed on next start.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
		cancelWorker()
	}

	hub.Close()

	log.Info().Msg("Server exited")
}
