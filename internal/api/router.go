// Package api wires the HTTP surface of the ingestion service.
package api

import (
	"net/http"

	"github.com/dvloznov/fintrack-api/internal/api/handlers"
	"github.com/dvloznov/fintrack-api/internal/api/middleware"
	"github.com/dvloznov/fintrack-api/internal/jobs"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Store is everything the routes need from the record store.
type Store interface {
	handlers.DocumentStore
	handlers.UsageStore
	middleware.UserLookup
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Store          Store
	Publisher      jobs.Publisher
	Importer       handlers.Importer
	Sockets        handlers.SocketServer
	AllowedOrigins []string
	Log            zerolog.Logger
}

// NewRouter builds the handler tree. Every /api/v1 route requires a known
// user; /health does not.
func NewRouter(d Deps) http.Handler {
	documents := handlers.NewDocumentsHandler(d.Store, d.Publisher, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Importer, d.Log)
	usage := handlers.NewUsageHandler(d.Store, d.Log)
	notifications := handlers.NewNotificationsHandler(d.Sockets)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(d.Store))

	// Documents endpoints
	api.HandleFunc("/documents/upload", documents.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents", documents.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", documents.GetDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", documents.DeleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/extraction", documents.GetExtraction).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/transactions", documents.ListDocumentTransactions).Methods(http.MethodGet)

	// Transactions endpoints
	api.HandleFunc("/transactions/bulk-import", transactions.BulkImport).Methods(http.MethodPost)

	// Usage and notifications
	api.HandleFunc("/usage/today", usage.Today).Methods(http.MethodGet)
	api.HandleFunc("/ws", notifications.Connect).Methods(http.MethodGet)

	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(
				middleware.CORS(d.AllowedOrigins...)(r),
			),
		),
	)
}
