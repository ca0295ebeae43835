package extraction

import (
	"strings"

	"github.com/dvloznov/fintrack-api/internal/domain"
)

// statementPrompt is sent alongside every document. The category list is
// rendered from the domain enum so the two never drift apart.
var statementPrompt = buildStatementPrompt()

func buildStatementPrompt() string {
	categories := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		categories[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("Extract ALL transactions from this bank statement PDF.\n\n")
	b.WriteString("Return ONLY valid JSON (no markdown, no explanations). Use this EXACT format:\n\n")
	b.WriteString(`{
  "transactions": [
    {
      "transaction_date": "YYYY-MM-DD",
      "description": "text",
      "amount": 123.45,
      "transaction_type": "debit",
      "balance_after": 5000.00,
      "category": "food",
      "merchant": "Merchant Name",
      "account_last4": "1234"
    }
  ],
  "metadata": {
    "account_holder": "Account holder name if visible",
    "account_number_last4": "Last 4 digits if visible",
    "statement_period": "Period description",
    "total_transactions": 10
  }
}

`)
	b.WriteString("Required fields:\n" +
		"- transaction_date: YYYY-MM-DD format\n" +
		"- description: Full transaction text from statement\n" +
		"- amount: Positive decimal (e.g. 123.45)\n" +
		"- transaction_type: ONLY \"debit\" or \"credit\" (lowercase)\n\n")
	b.WriteString("Optional fields (include if identifiable):\n" +
		"- balance_after: Balance after this transaction\n" +
		"- category: One of: " + strings.Join(categories, ", ") + "\n" +
		"- merchant: Merchant/vendor name if identifiable\n" +
		"- account_last4: Last 4 digits of account if shown\n\n")
	b.WriteString("Metadata (include if visible):\n" +
		"- account_holder: Account owner name\n" +
		"- account_number_last4: Last 4 digits of account number\n" +
		"- statement_period: Statement period description\n\n")
	b.WriteString("Rules:\n" +
		"- Extract EVERY transaction visible\n" +
		"- Sort by date (oldest first)\n" +
		"- Use double quotes for all strings\n" +
		"- No trailing commas\n" +
		"- Omit optional fields if not available")

	return b.String()
}
