// Package importer turns user-approved transaction candidates into stored
// transactions, replacing whatever an earlier import of the same document left.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxMerchantLength = 255

// Candidate is one reviewed transaction submitted for import.
type Candidate struct {
	TransactionDate string              `json:"transaction_date"`
	Description     string              `json:"description"`
	Amount          decimal.NullDecimal `json:"amount"`
	TransactionType string              `json:"transaction_type"`
	BalanceAfter    decimal.NullDecimal `json:"balance_after"`
	Category        string              `json:"category"`
	Merchant        *string             `json:"merchant"`
	AccountLast4    *string             `json:"account_last4"`
	Notes           *string             `json:"notes"`
}

// Result summarizes a successful import.
type Result struct {
	ImportedCount int
	ReplacedCount int
}

// Store is what the reconciler needs from the record store.
type Store interface {
	GetDocument(ctx context.Context, documentID, userID string) (*domain.Document, error)
	WithTx(ctx context.Context, fn func(domain.TransactionWriter) error) error
}

// Reconciler performs replace-on-reimport imports.
type Reconciler struct {
	store Store
	locks *keyedMutex
	log   zerolog.Logger
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		locks: newKeyedMutex(),
		log:   log.With().Str("component", "importer").Logger(),
	}
}

// Import replaces the caller's transactions for documentID with candidates.
// Validation happens before anything is written. The delete and the inserts
// share one storage transaction, and imports of the same document are
// serialized in-process. A failure after the delete started is an *ImportError.
func (r *Reconciler) Import(ctx context.Context, documentID, userID string, candidates []Candidate) (*Result, error) {
	doc, err := r.store.GetDocument(ctx, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	txs, err := buildTransactions(doc, userID, candidates)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(documentID)
	defer unlock()

	var (
		phase    = PhaseDelete
		replaced int
		inserted int
	)
	err = r.store.WithTx(ctx, func(w domain.TransactionWriter) error {
		n, err := w.DeleteDocumentTransactions(ctx, documentID, userID)
		if err != nil {
			return err
		}
		replaced = n

		phase = PhaseInsert
		for _, t := range txs {
			if err := w.InsertTransaction(ctx, t); err != nil {
				return err
			}
			inserted++
		}

		phase = PhaseCommit
		return nil
	})
	if err != nil {
		impErr := &ImportError{
			DocumentID: documentID,
			Phase:      phase,
			Deleted:    replaced,
			Inserted:   inserted,
			Err:        err,
		}
		ev := r.log.Error().Err(err).
			Str("document_id", documentID).
			Str("phase", string(phase)).
			Int("deleted", replaced).
			Int("inserted", inserted)
		if impErr.Partial() {
			ev.Bool("partial", true).Msg("import failed and rollback did not complete")
		} else {
			ev.Msg("import failed; previous transactions kept")
		}
		return nil, impErr
	}

	r.log.Info().
		Str("document_id", documentID).
		Str("user_id", userID).
		Int("imported", len(txs)).
		Int("replaced", replaced).
		Msg("transactions imported")

	return &Result{ImportedCount: len(txs), ReplacedCount: replaced}, nil
}

// buildTransactions validates every candidate and maps it to a Transaction
// tied to doc. The first invalid candidate aborts the whole batch.
func buildTransactions(doc *domain.Document, userID string, candidates []Candidate) ([]*domain.Transaction, error) {
	txs := make([]*domain.Transaction, 0, len(candidates))
	for i, c := range candidates {
		t, err := c.toTransaction()
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				vErr.Field = fmt.Sprintf("transactions[%d].%s", i, vErr.Field)
				return nil, vErr
			}
			return nil, err
		}

		docID := doc.ID
		filename := doc.OriginalFilename
		t.UserID = userID
		t.DocumentID = &docID
		t.BankAccountID = doc.BankAccountID
		t.SourceDocumentName = &filename
		t.IsManuallyAdded = false
		txs = append(txs, t)
	}
	return txs, nil
}

func (c Candidate) toTransaction() (*domain.Transaction, error) {
	date, err := civil.ParseDate(strings.TrimSpace(c.TransactionDate))
	if err != nil {
		return nil, domain.NewValidationError("transaction_date", "must be a date in YYYY-MM-DD format, got %q", c.TransactionDate)
	}

	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return nil, domain.NewValidationError("description", "must not be empty")
	}

	if !c.Amount.Valid {
		return nil, domain.NewValidationError("amount", "is required")
	}
	if c.Amount.Decimal.IsNegative() {
		return nil, domain.NewValidationError("amount", "must be zero or positive, got %s", c.Amount.Decimal)
	}

	txType, ok := domain.ParseTransactionType(c.TransactionType)
	if !ok {
		return nil, domain.NewValidationError("transaction_type", "must be debit or credit, got %q", c.TransactionType)
	}

	category, ok := domain.ParseCategory(c.Category)
	if !ok {
		return nil, domain.NewValidationError("category", "unknown category %q", c.Category)
	}

	merchant := trimmed(c.Merchant)
	if merchant != nil && utf8.RuneCountInString(*merchant) > maxMerchantLength {
		return nil, domain.NewValidationError("merchant", "must be at most %d characters", maxMerchantLength)
	}

	last4 := trimmed(c.AccountLast4)
	if last4 != nil && utf8.RuneCountInString(*last4) > 4 {
		return nil, domain.NewValidationError("account_last4", "must be at most 4 characters, got %q", *last4)
	}

	balance := c.BalanceAfter
	if balance.Valid {
		balance.Decimal = balance.Decimal.Round(domain.MoneyPlaces)
	}

	return &domain.Transaction{
		TransactionDate: date,
		Description:     desc,
		Amount:          c.Amount.Decimal.Round(domain.MoneyPlaces),
		TransactionType: txType,
		BalanceAfter:    balance,
		Category:        category,
		Merchant:        merchant,
		AccountLast4:    last4,
		Notes:           trimmed(c.Notes),
	}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
