package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// Extractor turns an uploaded document into structured expense data.
// Implementations return an error only for transport-level failures; a
// document the model could not fully read still yields a result with the
// unreadable fields left empty.
type Extractor interface {
	Extract(ctx context.Context, fileData []byte, fileType, fileName string) (*ExtractionResult, error)
	Name() string
}

// ChatMessage is one turn of an assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Chatter answers free-form questions grounded by a system prompt.
type Chatter interface {
	Chat(ctx context.Context, system string, messages []ChatMessage) (string, error)
}

// ExtractionResult carries whatever fields the model managed to read.
// Empty strings and nil pointers mean "not found"; the caller substitutes
// its own fallbacks.
type ExtractionResult struct {
	VendorName   string
	Amount       *decimal.Decimal
	Currency     string
	TaxAmount    *decimal.Decimal
	Date         *time.Time
	Description  string
	CategoryName string
	Confidence   decimal.Decimal
	LineItems    []ExtractedLineItem
	Raw          string
}

type ExtractedLineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// defaultConfidence is assumed when the model omits a confidence score.
var defaultConfidence = decimal.NewFromFloat(0.5)

const extractionPrompt = `You are an expert at reading invoices and receipts.
Extract the following fields from the document and respond with a single JSON object, no prose:
{
  "vendor_name": "merchant or vendor name",
  "amount": 123.45,
  "currency": "ISO 4217 code, e.g. USD",
  "tax_amount": 10.00,
  "date": "YYYY-MM-DD",
  "description": "one-line summary of the purchase",
  "category": "one of: Travel, Meals, Office Supplies, Software, Utilities, Marketing, Professional Services, Other",
  "confidence": 0.95,
  "line_items": [
    {"description": "item", "quantity": 1, "unit_price": 10.00, "total": 10.00}
  ]
}
Use null for any field you cannot read. "confidence" is your overall confidence between 0 and 1.`

// parseExtractionPayload decodes a model response into an ExtractionResult.
// The model does not always honor the schema, so every field is coerced
// individually and bad values degrade to "missing" instead of failing the
// whole extraction.
func parseExtractionPayload(content string) *ExtractionResult {
	result := &ExtractionResult{
		Confidence: defaultConfidence,
		Raw:        content,
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(stripCodeFences(content))))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return result
	}

	result.VendorName = asString(payload["vendor_name"])
	result.Amount = asDecimal(payload["amount"])
	result.Currency = strings.ToUpper(asString(payload["currency"]))
	result.TaxAmount = asDecimal(payload["tax_amount"])
	result.Date = asDate(payload["date"])
	result.Description = asString(payload["description"])
	result.CategoryName = asString(payload["category"])
	if c := asDecimal(payload["confidence"]); c != nil && !c.IsNegative() && c.LessThanOrEqual(decimal.NewFromInt(1)) {
		result.Confidence = *c
	}

	items, _ := payload["line_items"].([]any)
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		li := ExtractedLineItem{
			Description: asString(m["description"]),
			Quantity:    decimal.NewFromInt(1),
		}
		if q := asDecimal(m["quantity"]); q != nil && q.IsPositive() {
			li.Quantity = *q
		}
		if p := asDecimal(m["unit_price"]); p != nil {
			li.UnitPrice = *p
		}
		if t := asDecimal(m["total"]); t != nil {
			li.Total = *t
		}
		if li.Description == "" && li.Total.IsZero() {
			continue
		}
		result.LineItems = append(result.LineItems, li)
	}

	return result
}

// stripCodeFences removes a markdown ```json ... ``` wrapper, which several
// models emit despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func asDecimal(v any) *decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil
		}
		return &d
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(strings.TrimLeft(n, "$€£¥ "), ",", ""))
		if cleaned == "" {
			return nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

func asDate(v any) *time.Time {
	s := asString(v)
	if s == "" {
		return nil
	}
	for _, layout := range []string{models.DateLayout, "2006/01/02", "01/02/2006", "Jan 2, 2006", "2 Jan 2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return &d
		}
	}
	return nil
}

func mimeTypeFor(fileType string) string {
	switch strings.ToLower(fileType) {
	case "png", "image/png":
		return "image/png"
	case "jpg", "jpeg", "image/jpeg":
		return "image/jpeg"
	case "webp", "image/webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func isPDF(fileType, fileName string) bool {
	return strings.EqualFold(fileType, "pdf") ||
		strings.EqualFold(fileType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(fileName), ".pdf")
}

// ErrEmptyResponse indicates the provider returned no content at all, a
// hard failure as opposed to a degraded extraction.
var ErrEmptyResponse = fmt.Errorf("ai provider returned no content")
