package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/fintrack-api/internal/api/middleware"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/importer"
	"github.com/dvloznov/fintrack-api/internal/infra/sqlite"
	"github.com/dvloznov/fintrack-api/internal/logger"
)

// DocumentStore is the slice of the record store the document endpoints use.
type DocumentStore interface {
	CreateDocument(ctx context.Context, p sqlite.CreateDocumentParams) (*domain.Document, error)
	GetDocument(ctx context.Context, documentID, userID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]*domain.Document, int, error)
	DeleteDocument(ctx context.Context, documentID, userID string) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status domain.ProcessingStatus, errorMessage *string) error
	ListDocumentTransactions(ctx context.Context, documentID, userID string) ([]*domain.Transaction, error)
	BankAccountOwnedBy(ctx context.Context, bankAccountID, userID string) (bool, error)
}

// Importer applies a reviewed batch of transactions to a document.
type Importer interface {
	Import(ctx context.Context, documentID, userID string, candidates []importer.Candidate) (*importer.Result, error)
}

// UsageStore reports API usage totals.
type UsageStore interface {
	TodayUsage(ctx context.Context, userID string, now time.Time) (*domain.UsageSummary, error)
}

// SocketServer upgrades a request into a push-notification socket.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// currentUser returns the authenticated user. Routes behind Auth always have one.
func currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	return user, true
}

// writeServiceError maps a service error onto a status code and JSON body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	var impErr *importer.ImportError
	switch {
	case errors.Is(err, domain.ErrValidation):
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": vErr.Message,
				"field": vErr.Field,
			})
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, notFoundMessage)
	case errors.As(err, &impErr):
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to import transactions",
			"phase":   string(impErr.Phase),
			"partial": impErr.Partial(),
		})
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
