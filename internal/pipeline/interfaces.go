package pipeline

import (
	"context"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/dvloznov/fintrack-api/internal/extraction"
)

// Extractor turns document bytes into structured transactions.
// This interface enables mocking and testing of the model call.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*domain.ExtractionResult, error)
}

// DocumentStore is the slice of the record store the pipeline writes to.
type DocumentStore interface {
	UpdateDocumentStatus(ctx context.Context, documentID string, status domain.ProcessingStatus, errorMessage *string) error
	SetDocumentExtractionResult(ctx context.Context, documentID string, result *domain.ExtractionResult) error
}

// UserDirectory resolves contact details for the completion email.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}
