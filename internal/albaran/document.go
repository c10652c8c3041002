package albaran

import (
	"time"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/processing"
)

// Document is a scanned delivery note or invoice with the fields recovered from it
type Document struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"originalName"`
	ContentType  string            `json:"contentType"`
	Status       processing.Status `json:"status"`

	Supplier       *string            `json:"supplier"`
	DocumentNumber *string            `json:"documentNumber"`
	DocumentDate   *string            `json:"documentDate"`
	TaxID          *string            `json:"taxId"`
	TotalAmount    *extraction.Amount `json:"totalAmount"`
	Currency       string             `json:"currency"`
	Items          []Item             `json:"items"`
	RawText        *string            `json:"rawText"`
	Error          *string            `json:"error"`

	Provider   string               `json:"provider,omitempty"`
	Confidence *float64             `json:"confidence,omitempty"`
	Attempts   []processing.Attempt `json:"attempts,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Item is a line item with its 1-based position on the document
type Item struct {
	LineNumber int `json:"lineNumber"`
	extraction.LineItem
}

// Stats summarizes the stored documents
type Stats struct {
	Total      int        `json:"total"`
	ThisMonth  int        `json:"thisMonth"`
	Pending    int        `json:"pending"`
	Processing int        `json:"processing"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	LastScan   *time.Time `json:"lastScan"`
}

// processedDocument is the upload and reprocess response: the stored document and
// the result of the attempt that produced it
type processedDocument struct {
	Document         *Document         `json:"document"`
	ProcessingResult processing.Result `json:"processingResult"`
}

// applyResult copies a processing result onto the document. Fields from a previous
// attempt are cleared first so a failed reprocess doesn't leave stale data behind.
func (d *Document) applyResult(r processing.Result, now time.Time) {
	d.Supplier, d.DocumentNumber, d.DocumentDate, d.TaxID = nil, nil, nil, nil
	d.TotalAmount = nil
	d.Items = []Item{}
	d.RawText = r.RawText
	d.Error = r.Error
	d.Provider = r.Provider
	d.Confidence = r.Confidence
	d.Attempts = r.Attempts
	d.UpdatedAt = now
	d.ProcessedAt = &now

	if !r.Success {
		d.Status = processing.StatusFailed
		return
	}

	d.Status = processing.StatusCompleted
	if r.Data == nil {
		return
	}
	d.Supplier = r.Data.Supplier
	d.DocumentNumber = r.Data.DocumentNumber
	d.DocumentDate = r.Data.DocumentDate
	d.TaxID = r.Data.TaxID
	d.TotalAmount = r.Data.TotalAmount
	d.Currency = r.Data.Currency
	for i, item := range r.Data.Items {
		d.Items = append(d.Items, Item{LineNumber: i + 1, LineItem: item})
	}
}
