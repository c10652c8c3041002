package extraction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is reported when no provider supplies a currency
const DefaultCurrency = "EUR"

// Amount is a decimal value that encodes as a plain JSON number
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal
func NewAmount(d decimal.Decimal) *Amount {
	return &Amount{Decimal: d}
}

// MarshalJSON writes the amount unquoted so the wire format stays numeric
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// LineItem is one row of a document's itemized content.
// Only Description is filled by the line heuristic; the numeric fields come from
// providers that segment line items themselves.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    *Amount `json:"quantity"`
	UnitPrice   *Amount `json:"unitPrice"`
	TotalPrice  *Amount `json:"totalPrice"`
}

// Fields contains the structured data recovered from a document
type Fields struct {
	Supplier       *string    `json:"supplier"`
	DocumentNumber *string    `json:"documentNumber"`
	DocumentDate   *string    `json:"documentDate"` // matched token, not parsed
	TaxID          *string    `json:"taxId"`
	TotalAmount    *Amount    `json:"totalAmount"`
	Currency       string     `json:"currency"`
	Items          []LineItem `json:"items"`
}

// Overlay returns a copy of f where every value present in structured replaces the
// heuristic one. A structured total outside cfg's amount range is ignored. A non-empty
// structured item list replaces the heuristic items and is bounded to cfg.MaxItems.
func (f Fields) Overlay(structured *Fields, cfg Config) Fields {
	cfg = cfg.withDefaults()
	out := f
	out.Items = append([]LineItem{}, f.Items...)
	if structured == nil {
		return out
	}

	if structured.Supplier != nil {
		out.Supplier = structured.Supplier
	}
	if structured.DocumentNumber != nil {
		out.DocumentNumber = structured.DocumentNumber
	}
	if structured.DocumentDate != nil {
		out.DocumentDate = structured.DocumentDate
	}
	if structured.TaxID != nil {
		tax := strings.ToUpper(*structured.TaxID)
		out.TaxID = &tax
	}
	if structured.TotalAmount != nil && cfg.AmountInRange(structured.TotalAmount.Decimal) {
		out.TotalAmount = structured.TotalAmount
	}
	if c := strings.TrimSpace(structured.Currency); c != "" {
		out.Currency = strings.ToUpper(c)
	}
	if len(structured.Items) > 0 {
		items := structured.Items
		if len(items) > cfg.MaxItems {
			items = items[:cfg.MaxItems]
		}
		out.Items = append([]LineItem{}, items...)
	}

	return out
}

// ParseLooseAmount parses an amount as printed on a document, e.g. "1.234,56 €",
// "EUR 12,50" or "$1,234.56". The last separator followed by one or two digits is the
// decimal mark; every other separator is a thousands mark. Returns nil when no number
// can be recovered.
func ParseLooseAmount(s string) *Amount {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ".,")
	if cleaned == "" {
		return nil
	}

	last := strings.LastIndexAny(cleaned, ".,")
	if last >= 0 {
		fraction := cleaned[last+1:]
		whole := strings.NewReplacer(".", "", ",", "").Replace(cleaned[:last])
		if len(fraction) == 1 || len(fraction) == 2 {
			cleaned = whole + "." + fraction
		} else {
			cleaned = whole + fraction
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return NewAmount(d)
}

func stringPtr(s string) *string {
	return &s
}
