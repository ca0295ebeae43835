package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dvloznov/fintrack-api/internal/api/middleware"
	"github.com/dvloznov/fintrack-api/internal/importer"
	"github.com/rs/zerolog"
)

// maxImportBody bounds the bulk-import payload.
const maxImportBody = 5 << 20

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	importer Importer
	log      zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(imp Importer, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		importer: imp,
		log:      log,
	}
}

type bulkImportRequest struct {
	Transactions []importer.Candidate `json:"transactions"`
}

// BulkImport handles POST /api/v1/transactions/bulk-import?document_id=
//
// Re-importing the same document replaces the transactions from the
// previous import instead of adding to them.
func (h *TransactionsHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	documentID := strings.TrimSpace(r.URL.Query().Get("document_id"))
	if documentID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	var req bulkImportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err := dec.Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Transactions == nil {
		middleware.WriteError(w, http.StatusBadRequest, "transactions is required")
		return
	}

	res, err := h.importer.Import(r.Context(), documentID, user.ID, req.Transactions)
	if err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, bulkImportResponse{
		Message:       "Transactions imported successfully",
		ImportedCount: res.ImportedCount,
		ReplacedCount: res.ReplacedCount,
		DocumentID:    documentID,
	})
}
