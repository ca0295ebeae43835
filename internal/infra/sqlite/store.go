package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Store is the SQLite-backed record store. It holds the shared connection pool
// and delegates to the package-level operations.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open, migrated database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database file at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := Connect(path)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return NewStore(db), nil
}

// OpenInMemory returns a migrated store backed by a private in-memory database.
func OpenInMemory() (*Store, error) {
	db, err := ConnectInMemory()
	if err != nil {
		return nil, fmt.Errorf("OpenInMemory: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenInMemory: %w", err)
	}
	return NewStore(db), nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateDocument delegates to InsertDocument.
func (s *Store) CreateDocument(ctx context.Context, p CreateDocumentParams) (*domain.Document, error) {
	return InsertDocument(ctx, s.db, p)
}

// GetDocument delegates to GetDocument.
func (s *Store) GetDocument(ctx context.Context, documentID, userID string) (*domain.Document, error) {
	return GetDocument(ctx, s.db, documentID, userID)
}

// UpdateDocumentStatus delegates to UpdateDocumentStatus.
func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID string, status domain.ProcessingStatus, errorMessage *string) error {
	return UpdateDocumentStatus(ctx, s.db, documentID, status, errorMessage)
}

// SetDocumentExtractionResult delegates to SetDocumentExtractionResult.
func (s *Store) SetDocumentExtractionResult(ctx context.Context, documentID string, result *domain.ExtractionResult) error {
	return SetDocumentExtractionResult(ctx, s.db, documentID, result)
}

// DeleteDocument delegates to DeleteDocument.
func (s *Store) DeleteDocument(ctx context.Context, documentID, userID string) error {
	return DeleteDocument(ctx, s.db, documentID, userID)
}

// ListDocuments delegates to ListDocuments.
func (s *Store) ListDocuments(ctx context.Context, userID string, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	return ListDocuments(ctx, s.db, userID, filter)
}

// FailInterruptedDocuments delegates to FailInterruptedDocuments.
func (s *Store) FailInterruptedDocuments(ctx context.Context, message string) (int64, error) {
	return FailInterruptedDocuments(ctx, s.db, message)
}

// ListDocumentTransactions delegates to ListDocumentTransactions.
func (s *Store) ListDocumentTransactions(ctx context.Context, documentID, userID string) ([]*domain.Transaction, error) {
	return ListDocumentTransactions(ctx, s.db, documentID, userID)
}

// GetTransaction delegates to GetTransaction.
func (s *Store) GetTransaction(ctx context.Context, transactionID, userID string) (*domain.Transaction, error) {
	return GetTransaction(ctx, s.db, transactionID, userID)
}

// InsertTransaction writes a single transaction outside any import.
func (s *Store) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	return InsertTransaction(ctx, s.db, t)
}

// RecordUsage appends an APIUsage row.
func (s *Store) RecordUsage(ctx context.Context, u *domain.APIUsage) error {
	return InsertAPIUsage(ctx, s.db, u)
}

// TodayUsage sums a user's usage since midnight UTC of now.
func (s *Store) TodayUsage(ctx context.Context, userID string, now time.Time) (*domain.UsageSummary, error) {
	y, m, d := now.UTC().Date()
	return UsageSince(ctx, s.db, userID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ListDocumentUsage delegates to ListDocumentUsage.
func (s *Store) ListDocumentUsage(ctx context.Context, documentID string) ([]*domain.APIUsage, error) {
	return ListDocumentUsage(ctx, s.db, documentID)
}

// CreateUser delegates to InsertUser.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return InsertUser(ctx, s.db, u)
}

// GetUser delegates to GetUser.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return GetUser(ctx, s.db, userID)
}

// CreateBankAccount delegates to InsertBankAccount.
func (s *Store) CreateBankAccount(ctx context.Context, userID, name string, last4 *string) (string, error) {
	return InsertBankAccount(ctx, s.db, userID, name, last4)
}

// BankAccountOwnedBy delegates to BankAccountOwnedBy.
func (s *Store) BankAccountOwnedBy(ctx context.Context, bankAccountID, userID string) (bool, error) {
	return BankAccountOwnedBy(ctx, s.db, bankAccountID, userID)
}

// WithTx runs fn inside one database transaction. It commits when fn returns
// nil and rolls back otherwise. A failed rollback is reported through
// domain.ErrRollbackFailed alongside fn's error.
func (s *Store) WithTx(ctx context.Context, fn func(domain.TransactionWriter) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithTx: begin: %w", err)
	}

	if err := fn(&txWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("%w: %v", domain.ErrRollbackFailed, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithTx: commit: %w", err)
	}
	return nil
}

// txWriter binds transaction writes to one *sqlx.Tx.
type txWriter struct {
	tx *sqlx.Tx
}

func (w *txWriter) DeleteDocumentTransactions(ctx context.Context, documentID, userID string) (int, error) {
	return DeleteDocumentTransactions(ctx, w.tx, documentID, userID)
}

func (w *txWriter) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	return InsertTransaction(ctx, w.tx, t)
}
