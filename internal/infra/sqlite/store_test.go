package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, email string) string {
	t.Helper()
	u := &domain.User{Email: email, FirstName: "Test", IsActive: true}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u.ID
}

func seedDocument(t *testing.T, s *Store, userID string, kind domain.DocumentKind) *domain.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), CreateDocumentParams{
		UserID:           userID,
		Kind:             kind,
		OriginalFilename: "statement.pdf",
		FileSize:         1024,
		MIMEType:         "application/pdf",
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return doc
}

func strPtr(s string) *string { return &s }

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := Migrate(s.DB()); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "owner@example.com")
	other := seedUser(t, s, "other@example.com")

	doc := seedDocument(t, s, owner, domain.DocumentKindBankStatement)
	if doc.Status != domain.StatusPending {
		t.Errorf("new document status = %q, want pending", doc.Status)
	}

	got, err := s.GetDocument(ctx, doc.ID, owner)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.OriginalFilename != "statement.pdf" || got.FileSize != 1024 {
		t.Errorf("GetDocument() = %+v, fields not persisted", got)
	}
	if got.ProcessingStartedAt != nil || got.ProcessingCompletedAt != nil || got.ExtractionResult != nil {
		t.Errorf("pending document has lifecycle fields set: %+v", got)
	}

	if _, err := s.GetDocument(ctx, doc.ID, other); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDocument() by non-owner error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDocument(ctx, "missing", owner); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDocument() missing error = %v, want ErrNotFound", err)
	}
}

func TestCreateDocument_RequiresFields(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateDocument(context.Background(), CreateDocumentParams{UserID: "u"})
	if err == nil {
		t.Error("CreateDocument() without filename expected error")
	}
}

func TestUpdateDocumentStatus_Timestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	doc := seedDocument(t, s, user, domain.DocumentKindBankStatement)

	if err := s.UpdateDocumentStatus(ctx, doc.ID, domain.StatusProcessing, nil); err != nil {
		t.Fatalf("UpdateDocumentStatus(processing) error = %v", err)
	}
	got, _ := s.GetDocument(ctx, doc.ID, user)
	if got.ProcessingStartedAt == nil {
		t.Fatal("processing_started_at not stamped")
	}
	if got.ProcessingCompletedAt != nil {
		t.Error("processing_completed_at stamped too early")
	}

	result := &domain.ExtractionResult{
		Transactions: []domain.ExtractedTransaction{{
			TransactionDate: civil.Date{Year: 2024, Month: time.March, Day: 4},
			Description:     "Coffee",
			Amount:          decimal.RequireFromString("3.50"),
			TransactionType: domain.TransactionTypeDebit,
			Category:        domain.CategoryFood,
		}},
		Metadata: domain.ExtractionMetadata{TotalTransactions: 1},
	}
	if err := s.SetDocumentExtractionResult(ctx, doc.ID, result); err != nil {
		t.Fatalf("SetDocumentExtractionResult() error = %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID, user)
	if got.Status != domain.StatusProcessing {
		t.Errorf("SetDocumentExtractionResult changed status to %q", got.Status)
	}

	if err := s.UpdateDocumentStatus(ctx, doc.ID, domain.StatusCompleted, nil); err != nil {
		t.Fatalf("UpdateDocumentStatus(completed) error = %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID, user)
	if got.ProcessingCompletedAt == nil {
		t.Fatal("processing_completed_at not stamped")
	}
	if got.ProcessingStartedAt.After(*got.ProcessingCompletedAt) {
		t.Errorf("started %v after completed %v", got.ProcessingStartedAt, got.ProcessingCompletedAt)
	}
	if got.ExtractionResult == nil || len(got.ExtractionResult.Transactions) != 1 {
		t.Fatalf("extraction result not round-tripped: %+v", got.ExtractionResult)
	}
	tx := got.ExtractionResult.Transactions[0]
	if !tx.Amount.Equal(decimal.RequireFromString("3.5")) || tx.TransactionDate.Day != 4 {
		t.Errorf("round-tripped transaction = %+v", tx)
	}
}

func TestUpdateDocumentStatus_FailedClearsResultAndStoresMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	doc := seedDocument(t, s, user, domain.DocumentKindBankStatement)

	_ = s.UpdateDocumentStatus(ctx, doc.ID, domain.StatusProcessing, nil)
	_ = s.SetDocumentExtractionResult(ctx, doc.ID, &domain.ExtractionResult{})
	if err := s.UpdateDocumentStatus(ctx, doc.ID, domain.StatusFailed, strPtr("boom")); err != nil {
		t.Fatalf("UpdateDocumentStatus(failed) error = %v", err)
	}

	got, _ := s.GetDocument(ctx, doc.ID, user)
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Errorf("error_message = %v, want boom", got.ErrorMessage)
	}
	if got.ExtractionResult != nil {
		t.Error("failed document kept an extraction result")
	}
	if got.ProcessingCompletedAt == nil {
		t.Error("processing_completed_at not stamped on failure")
	}
}

func TestUpdateDocumentStatus_MissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateDocumentStatus(ctx, "gone", domain.StatusFailed, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateDocumentStatus() on missing row error = %v, want ErrNotFound", err)
	}
	if err := s.SetDocumentExtractionResult(ctx, "gone", &domain.ExtractionResult{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetDocumentExtractionResult() on missing row error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateDocumentStatus(ctx, "gone", domain.ProcessingStatus("archived"), nil); err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateDocumentStatus() with unknown status error = %v, want validation error", err)
	}
}

func TestDeleteDocument_NullsTransactionReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	doc := seedDocument(t, s, user, domain.DocumentKindBankStatement)

	var ids []string
	for i := 0; i < 4; i++ {
		txn := &domain.Transaction{
			UserID:             user,
			DocumentID:         strPtr(doc.ID),
			TransactionDate:    civil.Date{Year: 2024, Month: time.January, Day: i + 1},
			Description:        "row",
			Amount:             decimal.NewFromInt(int64(10 + i)),
			TransactionType:    domain.TransactionTypeDebit,
			SourceDocumentName: strPtr(doc.OriginalFilename),
		}
		if err := s.InsertTransaction(ctx, txn); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
		ids = append(ids, txn.ID)
	}

	if err := s.DeleteDocument(ctx, doc.ID, user); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if err := s.DeleteDocument(ctx, doc.ID, user); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second DeleteDocument() error = %v, want ErrNotFound", err)
	}

	for _, id := range ids {
		txn, err := s.GetTransaction(ctx, id, user)
		if err != nil {
			t.Fatalf("GetTransaction(%s) error = %v", id, err)
		}
		if txn.DocumentID != nil {
			t.Errorf("transaction %s document_id = %v, want nil", id, *txn.DocumentID)
		}
		if txn.SourceDocumentName == nil || *txn.SourceDocumentName != "statement.pdf" {
			t.Errorf("transaction %s lost source_document_name", id)
		}
	}
}

func TestDeleteDocument_NotOwned(t *testing.T) {
	s := newTestStore(t)
	owner := seedUser(t, s, "owner@example.com")
	other := seedUser(t, s, "other@example.com")
	doc := seedDocument(t, s, owner, domain.DocumentKindReceipt)

	if err := s.DeleteDocument(context.Background(), doc.ID, other); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteDocument() by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	other := seedUser(t, s, "o@example.com")

	stmt1 := seedDocument(t, s, user, domain.DocumentKindBankStatement)
	stmt2 := seedDocument(t, s, user, domain.DocumentKindBankStatement)
	seedDocument(t, s, user, domain.DocumentKindReceipt)
	seedDocument(t, s, other, domain.DocumentKindBankStatement)

	_ = s.UpdateDocumentStatus(ctx, stmt1.ID, domain.StatusProcessing, nil)
	_ = s.UpdateDocumentStatus(ctx, stmt1.ID, domain.StatusCompleted, nil)
	_ = s.UpdateDocumentStatus(ctx, stmt2.ID, domain.StatusProcessing, nil)
	_ = s.UpdateDocumentStatus(ctx, stmt2.ID, domain.StatusFailed, strPtr("bad"))

	for i := 0; i < 2; i++ {
		if err := s.InsertTransaction(ctx, &domain.Transaction{
			UserID:          user,
			DocumentID:      strPtr(stmt1.ID),
			TransactionDate: civil.Date{Year: 2024, Month: time.May, Day: 1},
			Description:     "x",
			Amount:          decimal.NewFromInt(1),
			TransactionType: domain.TransactionTypeCredit,
		}); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    domain.DocumentFilter
		wantCount int
		wantTotal int
	}{
		{name: "all", filter: domain.DocumentFilter{}, wantCount: 3, wantTotal: 3},
		{name: "by kind", filter: domain.DocumentFilter{Kind: domain.DocumentKindBankStatement}, wantCount: 2, wantTotal: 2},
		{name: "single status", filter: domain.DocumentFilter{Statuses: []domain.ProcessingStatus{domain.StatusPending}}, wantCount: 1, wantTotal: 1},
		{
			name:      "multiple statuses",
			filter:    domain.DocumentFilter{Statuses: []domain.ProcessingStatus{domain.StatusCompleted, domain.StatusFailed}},
			wantCount: 2,
			wantTotal: 2,
		},
		{name: "paged", filter: domain.DocumentFilter{Limit: 2, Offset: 2}, wantCount: 1, wantTotal: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, total, err := s.ListDocuments(ctx, user, tt.filter)
			if err != nil {
				t.Fatalf("ListDocuments() error = %v", err)
			}
			if len(docs) != tt.wantCount {
				t.Errorf("ListDocuments() returned %d docs, want %d", len(docs), tt.wantCount)
			}
			if total != tt.wantTotal {
				t.Errorf("ListDocuments() total = %d, want %d", total, tt.wantTotal)
			}
		})
	}

	docs, _, _ := s.ListDocuments(ctx, user, domain.DocumentFilter{Statuses: []domain.ProcessingStatus{domain.StatusCompleted}})
	if len(docs) != 1 || docs[0].TransactionCount != 2 {
		t.Errorf("completed document transaction count = %+v, want 2", docs)
	}
}

func TestFailInterruptedDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")

	pending := seedDocument(t, s, user, domain.DocumentKindBankStatement)
	processing := seedDocument(t, s, user, domain.DocumentKindBankStatement)
	done := seedDocument(t, s, user, domain.DocumentKindBankStatement)
	_ = s.UpdateDocumentStatus(ctx, processing.ID, domain.StatusProcessing, nil)
	_ = s.UpdateDocumentStatus(ctx, done.ID, domain.StatusCompleted, nil)

	n, err := s.FailInterruptedDocuments(ctx, "interrupted")
	if err != nil {
		t.Fatalf("FailInterruptedDocuments() error = %v", err)
	}
	if n != 2 {
		t.Errorf("FailInterruptedDocuments() = %d, want 2", n)
	}

	for _, id := range []string{pending.ID, processing.ID} {
		got, _ := s.GetDocument(ctx, id, user)
		if got.Status != domain.StatusFailed || got.ErrorMessage == nil || got.ProcessingCompletedAt == nil {
			t.Errorf("document %s not failed cleanly: %+v", id, got)
		}
	}
	got, _ := s.GetDocument(ctx, done.ID, user)
	if got.Status != domain.StatusCompleted {
		t.Errorf("completed document changed to %q", got.Status)
	}
}

func TestUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	docID := "doc-1"

	rows := []*domain.APIUsage{
		{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, StatusCode: 200, Success: true},
		{InputTokens: 10, OutputTokens: 0, TotalTokens: 10, StatusCode: 500, Success: false, ErrorMessage: strPtr("boom")},
		{InputTokens: 999, TotalTokens: 999, StatusCode: 200, Success: true, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)},
	}
	for _, u := range rows {
		u.Service = domain.UsageServiceGemini
		u.Operation = domain.UsageOperationDocumentProcessing
		u.ModelName = "gemini-2.5-flash"
		u.UserID = strPtr(user)
		u.DocumentID = strPtr(docID)
		if err := s.RecordUsage(ctx, u); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}

	summary, err := s.TodayUsage(ctx, user, time.Now())
	if err != nil {
		t.Fatalf("TodayUsage() error = %v", err)
	}
	want := domain.UsageSummary{Requests: 2, Failed: 1, InputTokens: 110, OutputTokens: 50, TotalTokens: 160}
	if *summary != want {
		t.Errorf("TodayUsage() = %+v, want %+v", *summary, want)
	}

	listed, err := s.ListDocumentUsage(ctx, docID)
	if err != nil {
		t.Fatalf("ListDocumentUsage() error = %v", err)
	}
	if len(listed) != 3 {
		t.Errorf("ListDocumentUsage() returned %d rows, want 3", len(listed))
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, "u@example.com")
	doc := seedDocument(t, s, user, domain.DocumentKindBankStatement)

	sentinel := errors.New("stop")
	err := s.WithTx(ctx, func(w domain.TransactionWriter) error {
		if err := w.InsertTransaction(ctx, &domain.Transaction{
			UserID:          user,
			DocumentID:      strPtr(doc.ID),
			TransactionDate: civil.Date{Year: 2024, Month: time.June, Day: 1},
			Description:     "temp",
			Amount:          decimal.NewFromInt(5),
			TransactionType: domain.TransactionTypeDebit,
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx() error = %v, want sentinel", err)
	}
	if errors.Is(err, domain.ErrRollbackFailed) {
		t.Error("WithTx() reported a failed rollback")
	}

	txns, _ := s.ListDocumentTransactions(ctx, doc.ID, user)
	if len(txns) != 0 {
		t.Errorf("rolled back transaction is visible: %d rows", len(txns))
	}
}

func TestBankAccountOwnedBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "owner@example.com")
	other := seedUser(t, s, "other@example.com")

	id, err := s.CreateBankAccount(ctx, owner, "Current", strPtr("1234"))
	if err != nil {
		t.Fatalf("CreateBankAccount() error = %v", err)
	}

	if ok, _ := s.BankAccountOwnedBy(ctx, id, owner); !ok {
		t.Error("BankAccountOwnedBy(owner) = false")
	}
	if ok, _ := s.BankAccountOwnedBy(ctx, id, other); ok {
		t.Error("BankAccountOwnedBy(other) = true")
	}
}

func TestGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedUser(t, s, "u@example.com")

	u, err := s.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.Email != "u@example.com" {
		t.Errorf("GetUser() email = %q", u.Email)
	}
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetUser(nobody) error = %v, want ErrNotFound", err)
	}
}
