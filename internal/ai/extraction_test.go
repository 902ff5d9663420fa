package ai

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractionPayload_FullPayload(t *testing.T) {
	content := `{
		"vendor_name": "Acme Corp",
		"amount": 120.50,
		"currency": "usd",
		"tax_amount": 10.05,
		"date": "2026-03-10",
		"description": "Office chairs",
		"category": "Office Supplies",
		"confidence": 0.92,
		"line_items": [
			{"description": "Chair", "quantity": 2, "unit_price": 55.00, "total": 110.00},
			{"description": "Delivery", "quantity": 1, "unit_price": 10.50, "total": 10.50}
		]
	}`

	result := parseExtractionPayload(content)

	assert.Equal(t, "Acme Corp", result.VendorName)
	require.NotNil(t, result.Amount)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("120.50")))
	assert.Equal(t, "USD", result.Currency)
	require.NotNil(t, result.TaxAmount)
	require.NotNil(t, result.Date)
	assert.Equal(t, "2026-03-10", result.Date.Format("2006-01-02"))
	assert.Equal(t, "Office Supplies", result.CategoryName)
	assert.True(t, result.Confidence.Equal(decimal.RequireFromString("0.92")))
	require.Len(t, result.LineItems, 2)
	assert.Equal(t, "Chair", result.LineItems[0].Description)
	assert.True(t, result.LineItems[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestParseExtractionPayload_CodeFences(t *testing.T) {
	content := "```json\n{\"vendor_name\": \"Acme Corp\", \"amount\": 10}\n```"

	result := parseExtractionPayload(content)

	assert.Equal(t, "Acme Corp", result.VendorName)
	require.NotNil(t, result.Amount)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(10)))
}

func TestParseExtractionPayload_PartialFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, r *ExtractionResult)
	}{
		{
			name:    "nulls degrade to missing",
			content: `{"vendor_name": null, "amount": null, "date": null}`,
			check: func(t *testing.T, r *ExtractionResult) {
				assert.Empty(t, r.VendorName)
				assert.Nil(t, r.Amount)
				assert.Nil(t, r.Date)
			},
		},
		{
			name:    "amount with currency symbol and separators",
			content: `{"amount": "$1,234.56"}`,
			check: func(t *testing.T, r *ExtractionResult) {
				require.NotNil(t, r.Amount)
				assert.True(t, r.Amount.Equal(decimal.RequireFromString("1234.56")))
			},
		},
		{
			name:    "unparseable amount degrades",
			content: `{"vendor_name": "Acme Corp", "amount": "about forty"}`,
			check: func(t *testing.T, r *ExtractionResult) {
				assert.Equal(t, "Acme Corp", r.VendorName)
				assert.Nil(t, r.Amount)
			},
		},
		{
			name:    "alternate date layouts",
			content: `{"date": "2026/03/10"}`,
			check: func(t *testing.T, r *ExtractionResult) {
				require.NotNil(t, r.Date)
				assert.Equal(t, "2026-03-10", r.Date.Format("2006-01-02"))
			},
		},
		{
			name:    "unparseable date degrades",
			content: `{"date": "sometime in March"}`,
			check: func(t *testing.T, r *ExtractionResult) {
				assert.Nil(t, r.Date)
			},
		},
		{
			name:    "empty line items are skipped",
			content: `{"line_items": [{"description": "", "total": 0}, {"description": "Real", "total": 5}]}`,
			check: func(t *testing.T, r *ExtractionResult) {
				require.Len(t, r.LineItems, 1)
				assert.Equal(t, "Real", r.LineItems[0].Description)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, parseExtractionPayload(tt.content))
		})
	}
}

func TestParseExtractionPayload_Confidence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing defaults to 0.5", `{}`, "0.5"},
		{"explicit value kept", `{"confidence": 0.8}`, "0.8"},
		{"above one ignored", `{"confidence": 42}`, "0.5"},
		{"negative ignored", `{"confidence": -0.3}`, "0.5"},
		{"zero is a valid score", `{"confidence": 0}`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseExtractionPayload(tt.content)
			assert.True(t, result.Confidence.Equal(decimal.RequireFromString(tt.want)),
				"got %s", result.Confidence)
		})
	}
}

func TestParseExtractionPayload_Unparseable(t *testing.T) {
	result := parseExtractionPayload("I could not read this document, sorry!")

	assert.Empty(t, result.VendorName)
	assert.Nil(t, result.Amount)
	assert.True(t, result.Confidence.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "I could not read this document, sorry!", result.Raw)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fences", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fences", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{}\n```  ", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("pdf", "scan.pdf"))
	assert.True(t, isPDF("application/pdf", "scan"))
	assert.True(t, isPDF("", "SCAN.PDF"))
	assert.False(t, isPDF("png", "scan.png"))
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", mimeTypeFor("png"))
	assert.Equal(t, "image/jpeg", mimeTypeFor("JPG"))
	assert.Equal(t, "image/webp", mimeTypeFor("webp"))
	assert.Equal(t, "image/png", mimeTypeFor("tiff"))
}
