package extraction

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Extractor turns raw OCR text into Fields. It is pure and safe for concurrent use.
type Extractor struct {
	cfg Config

	documentNumber []rule
	amount         []rule
	date           []rule
	taxID          []rule
}

// New creates an Extractor. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *Extractor {
	cfg = cfg.withDefaults()
	e := &Extractor{cfg: cfg}
	e.documentNumber = documentNumberRules(cfg.MinDocumentNumberLength)
	e.amount = amountRules(e.amountInRange)
	e.date = dateRules()
	e.taxID = taxIDRules()
	return e
}

var defaultExtractor = New(DefaultConfig())

// Extract runs the default extractor
func Extract(rawText string) Fields {
	return defaultExtractor.Extract(rawText)
}

// Config returns the effective thresholds
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract recovers whatever fields it can. Fields that cannot be matched are left nil.
func (e *Extractor) Extract(rawText string) Fields {
	lines := SplitLines(rawText)
	fields := Fields{
		Currency: e.cfg.DefaultCurrency,
		Items:    []LineItem{},
	}
	if len(lines) == 0 {
		return fields
	}

	if tok, ok := firstAccepted(e.documentNumber, lines); ok {
		fields.DocumentNumber = stringPtr(tok)
	}
	if s, ok := e.supplier(lines); ok {
		fields.Supplier = stringPtr(s)
	}
	if tok, ok := firstAccepted(e.amount, lines); ok {
		if d, err := parseAmountToken(tok); err == nil {
			fields.TotalAmount = NewAmount(d)
		}
	}
	if tok, ok := firstAccepted(e.date, lines); ok {
		fields.DocumentDate = stringPtr(tok)
	}
	flat := []string{strings.ToLower(strings.Join(lines, "\n"))}
	if tok, ok := firstAccepted(e.taxID, flat); ok {
		fields.TaxID = stringPtr(strings.ToUpper(tok))
	}
	fields.Items = e.items(lines)

	return fields
}

// SplitLines breaks raw text into trimmed, non-empty lines in their original order
func SplitLines(rawText string) []string {
	rawText = strings.ReplaceAll(rawText, "\r\n", "\n")
	rawText = strings.ReplaceAll(rawText, "\r", "\n")

	var lines []string
	for _, l := range strings.Split(rawText, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (e *Extractor) supplier(lines []string) (string, bool) {
	n := min(e.cfg.SupplierScanLines, len(lines))
	for _, line := range lines[:n] {
		length := utf8.RuneCountInString(line)
		if length <= e.cfg.SupplierMinLength || length >= e.cfg.SupplierMaxLength {
			continue
		}
		if !reLetterRun.MatchString(line) || excludedSupplier(line) {
			continue
		}
		return line, true
	}
	return "", false
}

func excludedSupplier(line string) bool {
	for _, re := range supplierExclusions {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (e *Extractor) items(lines []string) []LineItem {
	items := []LineItem{}
	for _, line := range lines {
		if len(items) == e.cfg.MaxItems {
			break
		}
		length := utf8.RuneCountInString(line)
		if length <= e.cfg.ItemMinLength || length >= e.cfg.ItemMaxLength {
			continue
		}
		if !reDigit.MatchString(line) || !reLetterRun.MatchString(line) {
			continue
		}
		if reItemLabelPrefix.MatchString(line) || reItemContactPrefix.MatchString(line) {
			continue
		}
		items = append(items, LineItem{Description: line})
	}
	return items
}

func (e *Extractor) amountInRange(token string) bool {
	d, err := parseAmountToken(token)
	if err != nil {
		return false
	}
	return e.cfg.AmountInRange(d)
}

// parseAmountToken reads a matched amount token, treating a comma as the decimal mark
func parseAmountToken(token string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(token, ",", ".", 1))
}
