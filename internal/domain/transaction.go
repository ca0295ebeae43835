package domain

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType carries the sign of a transaction; amounts are always positive.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// ParseTransactionType normalizes s and reports whether it is debit or credit.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionTypeDebit, TransactionTypeCredit:
		return t, true
	default:
		return "", false
	}
}

// Category is the closed set of transaction categories.
type Category string

const (
	CategoryUncategorized   Category = "uncategorized"
	CategorySalary          Category = "salary"
	CategoryRent            Category = "rent"
	CategoryUtilities       Category = "utilities"
	CategoryFood            Category = "food"
	CategoryTransportation  Category = "transportation"
	CategoryEntertainment   Category = "entertainment"
	CategoryShopping        Category = "shopping"
	CategoryHealthcare      Category = "healthcare"
	CategoryBusinessExpense Category = "business_expense"
	CategoryInvestment      Category = "investment"
	CategoryTransfer        Category = "transfer"
	CategoryOther           Category = "other"
)

// Categories lists every valid category in prompt order.
var Categories = []Category{
	CategorySalary,
	CategoryRent,
	CategoryUtilities,
	CategoryFood,
	CategoryTransportation,
	CategoryEntertainment,
	CategoryShopping,
	CategoryHealthcare,
	CategoryBusinessExpense,
	CategoryInvestment,
	CategoryTransfer,
	CategoryOther,
	CategoryUncategorized,
}

// ParseCategory normalizes s. An empty string maps to uncategorized.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryUncategorized, true
	}
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// MoneyPlaces is the number of fraction digits kept for monetary amounts.
const MoneyPlaces = 2

// Transaction is one ledger entry owned by a user.
type Transaction struct {
	ID                 string
	UserID             string
	DocumentID         *string // nil once the source document is deleted
	BankAccountID      *string
	TransactionDate    civil.Date
	Description        string
	Amount             decimal.Decimal
	TransactionType    TransactionType
	BalanceAfter       decimal.NullDecimal
	Category           Category
	Merchant           *string
	AccountLast4       *string
	Notes              *string
	SourceDocumentName *string
	IsManuallyAdded    bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransactionWriter is the write surface available inside one storage transaction.
type TransactionWriter interface {
	DeleteDocumentTransactions(ctx context.Context, documentID, userID string) (int, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
}
