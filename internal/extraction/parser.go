package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/shopspring/decimal"
)

// snippetRadius is how many bytes of context are kept on each side of a parse failure.
const snippetRadius = 50

var requiredFields = []string{"transaction_date", "description", "amount", "transaction_type"}

// ParseResponse cleans raw model text and validates it into an ExtractionResult.
// Every failure is an *ExtractionError.
func ParseResponse(raw string) (*domain.ExtractionResult, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, newExtractionError("Gemini API returned no text content")
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, parseFailure(clean, err)
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, newExtractionError("Invalid response format: expected a JSON object, got %s", jsonKind(parsed))
	}

	txAny, ok := obj["transactions"]
	if !ok {
		return nil, newExtractionError("Invalid response format: missing 'transactions' field")
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, newExtractionError("Invalid response format: 'transactions' must be a list")
	}

	result := &domain.ExtractionResult{
		Transactions: make([]domain.ExtractedTransaction, 0, len(txSlice)),
	}
	for i, item := range txSlice {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, newExtractionError("Transaction %d is %s, want an object", i, jsonKind(item))
		}
		tx, err := transformTransaction(entry)
		if err != nil {
			return nil, newExtractionError("Transaction %d %s", i, err.Error())
		}
		result.Transactions = append(result.Transactions, *tx)
	}

	result.Metadata = transformMetadata(obj["metadata"], len(result.Transactions))

	return result, nil
}

func transformTransaction(obj map[string]interface{}) (*domain.ExtractedTransaction, error) {
	for _, field := range requiredFields {
		if v, ok := obj[field]; !ok || v == nil {
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}

	dateStr, err := getStringField(obj, "transaction_date", true)
	if err != nil {
		return nil, err
	}
	date, err := civil.ParseDate(strings.TrimSpace(dateStr))
	if err != nil {
		return nil, fmt.Errorf("has invalid transaction_date %q", dateStr)
	}

	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return nil, err
	}

	rawType, err := getStringField(obj, "transaction_type", true)
	if err != nil {
		return nil, fmt.Errorf("has invalid type: %v", obj["transaction_type"])
	}
	txType, ok := domain.ParseTransactionType(rawType)
	if !ok {
		return nil, fmt.Errorf("has invalid type: %s", rawType)
	}

	amount, err := getDecimalField(obj, "amount")
	if err != nil {
		return nil, err
	}

	balance, err := getOptionalDecimalField(obj, "balance_after")
	if err != nil {
		return nil, err
	}

	// Unknown or malformed categories are tolerated; the user reviews them before import.
	category := domain.CategoryUncategorized
	if raw, err := getOptionalStringField(obj, "category"); err == nil && raw != nil {
		if c, ok := domain.ParseCategory(*raw); ok {
			category = c
		}
	}

	merchant, _ := getOptionalStringField(obj, "merchant")
	last4, _ := getOptionalStringField(obj, "account_last4")

	return &domain.ExtractedTransaction{
		TransactionDate: date,
		Description:     strings.TrimSpace(desc),
		Amount:          amount.Abs().Round(domain.MoneyPlaces),
		TransactionType: txType,
		BalanceAfter:    balance,
		Category:        category,
		Merchant:        merchant,
		AccountLast4:    lastFour(last4),
	}, nil
}

// transformMetadata is lenient: metadata is informational and never blocks a result.
func transformMetadata(v interface{}, count int) domain.ExtractionMetadata {
	meta := domain.ExtractionMetadata{TotalTransactions: count}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return meta
	}

	meta.AccountHolder, _ = getOptionalStringField(obj, "account_holder")
	last4, _ := getOptionalStringField(obj, "account_number_last4")
	meta.AccountNumberLast4 = lastFour(last4)
	meta.StatementPeriod, _ = getOptionalStringField(obj, "statement_period")

	if n, ok := obj["total_transactions"].(json.Number); ok {
		if total, err := n.Int64(); err == nil && total >= 0 {
			meta.TotalTransactions = int(total)
		}
	}

	return meta
}

// cleanModelJSON strips Markdown fences and any prose around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}

	// Keep only the first '{' through the last '}' if junk is still around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	return strings.TrimSpace(s)
}

// parseFailure builds an ExtractionError that points at the failing byte.
func parseFailure(clean string, err error) *ExtractionError {
	offset := int64(-1)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	case errors.Is(err, io.ErrUnexpectedEOF):
		offset = int64(len(clean))
	}

	e := &ExtractionError{Offset: offset, Err: err}
	if offset >= 0 {
		e.Snippet = snippetAround(clean, offset, snippetRadius)
		e.Message = fmt.Sprintf("Failed to parse Gemini response as JSON at byte %d: %v (near %q)", offset, err, e.Snippet)
	} else {
		e.Message = fmt.Sprintf("Failed to parse Gemini response as JSON: %v", err)
	}
	return e
}

func snippetAround(s string, offset int64, radius int) string {
	pos := int(offset)
	if pos > len(s) {
		pos = len(s)
	}
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + radius
	if end > len(s) {
		end = len(s)
	}
	return strings.ToValidUTF8(s[start:end], "")
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "an object"
	case []interface{}:
		return "a list"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func lastFour(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if len(v) > 4 {
		v = v[len(v)-4:]
	}
	if v == "" {
		return nil
	}
	return &v
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field: %s", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("has empty required field: %s", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q is %s, want a string", key, jsonKind(v))
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case json.Number:
		s = val.String()
	default:
		return nil, fmt.Errorf("field %q is %s, want a string", key, jsonKind(v))
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func getDecimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	d, err := toDecimal(m[key])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("has invalid %s: %w", key, err)
	}
	return d, nil
}

func getOptionalDecimalField(m map[string]interface{}, key string) (decimal.NullDecimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("has invalid %s: %w", key, err)
	}
	return decimal.NullDecimal{Decimal: d.Round(domain.MoneyPlaces), Valid: true}, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		cleaned := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(val))
		return decimal.NewFromString(cleaned)
	default:
		return decimal.Decimal{}, fmt.Errorf("got %s, want a number", jsonKind(v))
	}
}
