package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"

	"github.com/zombor/albaran-tracker/internal/extraction"
)

// DocumentAI implements the Scanner interface with a Google Document AI invoice
// or expense processor. Besides the text it returns the processor's entities as
// structured fields.
type DocumentAI struct {
	service       *documentai.Service
	processor     string
	minTextLength int
}

// DocumentAIConfig names the processor to call
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us" or "eu"
	ProcessorID string
	// APIKey is optional; without it application default credentials are used
	APIKey string
}

// NewDocumentAI creates a Document AI scanner. Extra options are appended after the
// defaults, so tests can point it at a fake endpoint.
func NewDocumentAI(ctx context.Context, cfg DocumentAIConfig, opts ...option.ClientOption) (*DocumentAI, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai project and processor ids are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	base := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("https://%s-documentai.googleapis.com/", cfg.Location)),
	}
	if cfg.APIKey != "" {
		base = append(base, option.WithAPIKey(cfg.APIKey))
	}

	svc, err := documentai.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating document ai client: %w", err)
	}

	return &DocumentAI{
		service:       svc,
		processor:     fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		minTextLength: StructuredMinTextLength,
	}, nil
}

// WithMinTextLength overrides the usable text threshold
func (d *DocumentAI) WithMinTextLength(n int) *DocumentAI {
	if n > 0 {
		d.minTextLength = n
	}
	return d
}

func (d *DocumentAI) Name() string       { return "documentai" }
func (d *DocumentAI) MinTextLength() int { return d.minTextLength }

// Scan sends the image inline and maps the returned entities
func (d *DocumentAI) Scan(ctx context.Context, img Image) (*Recognition, error) {
	data, mimeType, err := preparePassthrough(img, "image/jpeg", "image/png", "image/tiff", "image/gif", "image/webp", "application/pdf")
	if err != nil {
		return nil, err
	}

	req := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
		},
	}

	resp, err := d.service.Projects.Locations.Processors.Process(d.processor, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("processing document: %w", err)
	}
	if resp.Document == nil {
		return nil, fmt.Errorf("no document in document ai response")
	}

	return &Recognition{
		Text:       resp.Document.Text,
		Provider:   d.Name(),
		Confidence: meanEntityConfidence(resp.Document.Entities),
		Fields:     fieldsFromEntities(resp.Document.Entities),
	}, nil
}

// Close is a no-op; the REST service holds no connections of its own
func (d *DocumentAI) Close() error {
	return nil
}

// fieldsFromEntities maps invoice and expense parser entities. Returns nil when none
// of the entities are recognized.
func fieldsFromEntities(entities []*documentai.GoogleCloudDocumentaiV1DocumentEntity) *extraction.Fields {
	fields := &extraction.Fields{}
	found := false

	for _, e := range entities {
		if e == nil {
			continue
		}
		text := strings.TrimSpace(e.MentionText)

		switch e.Type {
		case "supplier_name":
			found = setString(&fields.Supplier, text) || found
		case "invoice_id", "invoice_number":
			found = setString(&fields.DocumentNumber, text) || found
		case "invoice_date", "receipt_date":
			found = setString(&fields.DocumentDate, text) || found
		case "supplier_tax_id", "tax_id":
			found = setString(&fields.TaxID, text) || found
		case "total_amount":
			if amount := entityAmount(e); amount != nil && fields.TotalAmount == nil &&
				extraction.DefaultConfig().AmountInRange(amount.Decimal) {
				fields.TotalAmount = amount
				found = true
			}
			if fields.Currency == "" {
				fields.Currency = entityCurrency(e)
			}
		case "currency":
			if text != "" {
				fields.Currency = text
				found = true
			}
		case "line_item":
			if item, ok := lineItemFromEntity(e); ok {
				fields.Items = append(fields.Items, item)
				found = true
			}
		}
	}

	if !found {
		return nil
	}
	return fields
}

func lineItemFromEntity(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) (extraction.LineItem, bool) {
	var item extraction.LineItem
	for _, p := range e.Properties {
		if p == nil {
			continue
		}
		switch strings.TrimPrefix(p.Type, "line_item/") {
		case "description":
			item.Description = strings.TrimSpace(p.MentionText)
		case "quantity":
			item.Quantity = entityAmount(p)
		case "unit_price":
			item.UnitPrice = entityAmount(p)
		case "amount", "total_price":
			item.TotalPrice = entityAmount(p)
		}
	}
	if item.Description == "" {
		item.Description = strings.TrimSpace(e.MentionText)
	}
	return item, item.Description != ""
}

// entityAmount prefers the normalized money value and falls back to the printed text
func entityAmount(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) *extraction.Amount {
	if nv := e.NormalizedValue; nv != nil && nv.MoneyValue != nil {
		m := nv.MoneyValue
		return extraction.NewAmount(decimal.New(m.Units, 0).Add(decimal.New(m.Nanos, -9)))
	}
	return extraction.ParseLooseAmount(e.MentionText)
}

func entityCurrency(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) string {
	if nv := e.NormalizedValue; nv != nil && nv.MoneyValue != nil {
		return nv.MoneyValue.CurrencyCode
	}
	return ""
}

func meanEntityConfidence(entities []*documentai.GoogleCloudDocumentaiV1DocumentEntity) *float64 {
	var sum float64
	var n int
	for _, e := range entities {
		if e != nil && e.Confidence > 0 {
			sum += e.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// setString stores s in dst unless s is empty or dst is already set
func setString(dst **string, s string) bool {
	if s == "" || *dst != nil {
		return false
	}
	*dst = &s
	return true
}
