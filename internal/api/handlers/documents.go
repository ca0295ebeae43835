package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/fintrack-api/internal/api/middleware"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/infra/sqlite"
	"github.com/dvloznov/fintrack-api/internal/jobs"
	"github.com/dvloznov/fintrack-api/internal/jobs/inmemory"
	"github.com/dvloznov/fintrack-api/internal/logger"
	"github.com/dvloznov/fintrack-api/internal/upload"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	// multipart overhead allowed on top of the file itself
	formOverhead = 1 << 20

	publishTimeout = 5 * time.Second

	queueFailureMessage = "Failed to queue document for processing"
)

// DocumentsHandler handles document-related endpoints.
type DocumentsHandler struct {
	store     DocumentStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(store DocumentStore, publisher jobs.Publisher, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// UploadDocument handles POST /api/v1/documents/upload
//
// The file is validated, a pending Document is created and the bytes are
// handed to the worker pool. The response does not wait for extraction.
func (h *DocumentsHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(upload.MaxFileSize + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size: %dMB", upload.MaxFileSize>>20))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	kind, ok := domain.ParseDocumentKind(r.FormValue("document_type"))
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid document type: %s", r.FormValue("document_type")))
		return
	}

	wantsEmail, err := parseOptionalBool(r.FormValue("send_email_notification"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "send_email_notification must be true or false")
		return
	}

	filename := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	mimeType, err := upload.Validate(upload.File{
		Filename: filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	var bankAccountID *string
	if id := strings.TrimSpace(r.FormValue("bank_account_id")); id != "" {
		owned, err := h.store.BankAccountOwnedBy(ctx, id, user.ID)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		if !owned {
			middleware.WriteError(w, http.StatusNotFound, "Bank account not found")
			return
		}
		bankAccountID = &id
	}

	doc, err := h.store.CreateDocument(ctx, sqlite.CreateDocumentParams{
		UserID:            user.ID,
		Kind:              kind,
		OriginalFilename:  filename,
		FileSize:          int64(len(data)),
		MIMEType:          mimeType,
		BankAccountID:     bankAccountID,
		EmailNotification: wantsEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create document")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}

	job := &jobs.ProcessDocumentJob{
		JobID:      uuid.New().String(),
		DocumentID: doc.ID,
		UserID:     user.ID,
		Filename:   filename,
		MIMEType:   mimeType,
		Data:       data,
		WantsEmail: wantsEmail,
		CreatedAt:  time.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := h.publisher.PublishProcessDocument(pubCtx, job); err != nil {
		log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to enqueue document")

		// The bytes are gone once this request ends, so the document can never run.
		msg := queueFailureMessage
		failCtx, cancelFail := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancelFail()
		if uerr := h.store.UpdateDocumentStatus(failCtx, doc.ID, domain.StatusFailed, &msg); uerr != nil {
			log.Error().Err(uerr).Str("document_id", doc.ID).Msg("Failed to mark unqueued document as failed")
		}

		status := http.StatusInternalServerError
		if errors.Is(err, inmemory.ErrQueueFull) || errors.Is(err, inmemory.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteError(w, status, queueFailureMessage)
		return
	}

	log.Info().
		Str("document_id", doc.ID).
		Str("job_id", job.JobID).
		Str("filename", filename).
		Int64("bytes", doc.FileSize).
		Msg("Document queued for processing")

	middleware.WriteJSON(w, http.StatusAccepted, toDocumentResponse(doc))
}

// ListDocuments handles GET /api/v1/documents
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var filter domain.DocumentFilter

	if raw := query.Get("document_type"); raw != "" {
		kind, ok := domain.ParseDocumentKind(raw)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid document type: %s", raw))
			return
		}
		filter.Kind = kind
	}

	// status may be repeated or comma-separated
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, ok := domain.ParseProcessingStatus(part)
			if !ok {
				middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status: %s", part))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	var err error
	if filter.Limit, err = parseNonNegative(query.Get("limit")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = parseNonNegative(query.Get("offset")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	docs, total, err := h.store.ListDocuments(r.Context(), user.ID, filter)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	limit, offset := filter.Page()
	resp := documentListResponse{
		Documents: make([]documentResponse, 0, len(docs)),
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(d))
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// GetDocument handles GET /api/v1/documents/{id}
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	doc, err := h.store.GetDocument(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// GetExtraction handles GET /api/v1/documents/{id}/extraction
//
// The extraction is only available once the document completed.
func (h *DocumentsHandler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	doc, err := h.store.GetDocument(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}
	if doc.Status != domain.StatusCompleted {
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":             "Document processing has not completed",
			"processing_status": string(doc.Status),
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toExtractionResponse(doc))
}

// ListDocumentTransactions handles GET /api/v1/documents/{id}/transactions
func (h *DocumentsHandler) ListDocumentTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	documentID := mux.Vars(r)["id"]

	if _, err := h.store.GetDocument(ctx, documentID, user.ID); err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}

	txs, err := h.store.ListDocumentTransactions(ctx, documentID, user.ID)
	if err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// DeleteDocument handles DELETE /api/v1/documents/{id}
//
// Imported transactions survive; they lose the link to the document.
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	documentID := mux.Vars(r)["id"]
	if err := h.store.DeleteDocument(r.Context(), documentID, user.ID); err != nil {
		writeServiceError(w, r, err, "Document not found")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("document_id", documentID).Msg("Document deleted")
	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalBool(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

func parseNonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
