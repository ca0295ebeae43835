package extraction

import (
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/shopspring/decimal"
)

const validResponse = `{
  "transactions": [
    {
      "transaction_date": "2025-01-03",
      "description": "TESCO STORES 2231",
      "amount": 42.50,
      "transaction_type": "debit",
      "balance_after": 1957.50,
      "category": "food",
      "merchant": "Tesco",
      "account_last4": "1234"
    },
    {
      "transaction_date": "2025-01-05",
      "description": "ACME LTD SALARY",
      "amount": 3000,
      "transaction_type": "CREDIT",
      "balance_after": null,
      "category": "salary"
    }
  ],
  "metadata": {
    "account_holder": "J SMITH",
    "account_number_last4": "12345678",
    "statement_period": "2025-01-01 to 2025-01-31",
    "total_transactions": 2
  }
}`

func TestParseResponse_Valid(t *testing.T) {
	result, err := ParseResponse(validResponse)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(result.Transactions))
	}

	first := result.Transactions[0]
	if first.TransactionDate.String() != "2025-01-03" {
		t.Errorf("date = %s, want 2025-01-03", first.TransactionDate)
	}
	if !first.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("amount = %s, want 42.50", first.Amount)
	}
	if first.TransactionType != domain.TransactionTypeDebit {
		t.Errorf("type = %s, want debit", first.TransactionType)
	}
	if !first.BalanceAfter.Valid || !first.BalanceAfter.Decimal.Equal(decimal.RequireFromString("1957.50")) {
		t.Errorf("balance_after = %+v, want 1957.50", first.BalanceAfter)
	}
	if first.Merchant == nil || *first.Merchant != "Tesco" {
		t.Errorf("merchant = %v, want Tesco", first.Merchant)
	}

	second := result.Transactions[1]
	if second.TransactionType != domain.TransactionTypeCredit {
		t.Errorf("type = %s, want credit", second.TransactionType)
	}
	if second.BalanceAfter.Valid {
		t.Errorf("balance_after should be null, got %s", second.BalanceAfter.Decimal)
	}

	if result.Metadata.TotalTransactions != 2 {
		t.Errorf("total_transactions = %d, want 2", result.Metadata.TotalTransactions)
	}
	if result.Metadata.AccountNumberLast4 == nil || *result.Metadata.AccountNumberLast4 != "5678" {
		t.Errorf("account_number_last4 = %v, want 5678", result.Metadata.AccountNumberLast4)
	}
}

func TestParseResponse_Normalization(t *testing.T) {
	raw := "```json\n" + `{"transactions":[{"transaction_date":"2025-02-01","description":" Refund ","amount":-12.345,"transaction_type":"debit","category":"gadgets","account_last4":987654}]}` + "\n```"

	result, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	tx := result.Transactions[0]

	if !tx.Amount.Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("amount = %s, want 12.35", tx.Amount)
	}
	if tx.Description != "Refund" {
		t.Errorf("description = %q, want trimmed", tx.Description)
	}
	if tx.Category != domain.CategoryUncategorized {
		t.Errorf("category = %s, want uncategorized", tx.Category)
	}
	if tx.AccountLast4 == nil || *tx.AccountLast4 != "7654" {
		t.Errorf("account_last4 = %v, want 7654", tx.AccountLast4)
	}
	if result.Metadata.TotalTransactions != 1 {
		t.Errorf("total_transactions = %d, want defaulted to 1", result.Metadata.TotalTransactions)
	}
}

func TestParseResponse_EmptyTransactions(t *testing.T) {
	result, err := ParseResponse(`{"transactions": []}`)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if len(result.Transactions) != 0 {
		t.Errorf("got %d transactions, want 0", len(result.Transactions))
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{
			name:    "empty text",
			raw:     "   ",
			wantMsg: "no text content",
		},
		{
			name:    "top level list",
			raw:     `[1, 2]`,
			wantMsg: "expected a JSON object",
		},
		{
			name:    "missing transactions",
			raw:     `{"metadata": {}}`,
			wantMsg: "missing 'transactions' field",
		},
		{
			name:    "transactions not a list",
			raw:     `{"transactions": {"a": 1}}`,
			wantMsg: "'transactions' must be a list",
		},
		{
			name:    "missing amount",
			raw:     `{"transactions":[{"transaction_date":"2025-01-01","description":"x","transaction_type":"debit"}]}`,
			wantMsg: "Transaction 0 missing required field: amount",
		},
		{
			name:    "invalid type",
			raw:     `{"transactions":[{"transaction_date":"2025-01-01","description":"x","amount":1,"transaction_type":"refund"}]}`,
			wantMsg: "Transaction 0 has invalid type: refund",
		},
		{
			name:    "bad date",
			raw:     `{"transactions":[{"transaction_date":"01/02/2025","description":"x","amount":1,"transaction_type":"debit"}]}`,
			wantMsg: "invalid transaction_date",
		},
		{
			name:    "bad amount",
			raw:     `{"transactions":[{"transaction_date":"2025-01-01","description":"x","amount":"lots","transaction_type":"debit"}]}`,
			wantMsg: "invalid amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			var extErr *ExtractionError
			if !errors.As(err, &extErr) {
				t.Fatalf("error = %v, want *ExtractionError", err)
			}
			if !strings.Contains(extErr.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", extErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseResponse_SyntaxErrorLocation(t *testing.T) {
	raw := `{"transactions": [{"transaction_date": "2025-01-01", "description": "x", "amount": 1,, "transaction_type": "debit"}]}`

	_, err := ParseResponse(raw)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
	if extErr.Offset <= 0 {
		t.Errorf("offset = %d, want a positive byte offset", extErr.Offset)
	}
	if !strings.Contains(extErr.Snippet, "1,,") {
		t.Errorf("snippet = %q, want it to surround the failure", extErr.Snippet)
	}
	if len(extErr.Snippet) > 2*snippetRadius {
		t.Errorf("snippet length = %d, want at most %d", len(extErr.Snippet), 2*snippetRadius)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
