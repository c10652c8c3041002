package extraction

import "github.com/shopspring/decimal"

// Config holds the tuned thresholds of the extractor. Bounds are exclusive.
type Config struct {
	DefaultCurrency string

	SupplierScanLines int // only the first N lines can name the supplier
	SupplierMinLength int
	SupplierMaxLength int

	ItemMinLength int
	ItemMaxLength int
	MaxItems      int

	MinDocumentNumberLength int // inclusive

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// DefaultConfig returns the thresholds the rule set was tuned with
func DefaultConfig() Config {
	return Config{
		DefaultCurrency:         DefaultCurrency,
		SupplierScanLines:       8,
		SupplierMinLength:       8,
		SupplierMaxLength:       60,
		ItemMinLength:           15,
		ItemMaxLength:           100,
		MaxItems:                8,
		MinDocumentNumberLength: 3,
		MinAmount:               decimal.Zero,
		MaxAmount:               decimal.NewFromInt(999999),
	}
}

// AmountInRange reports whether d lies strictly between MinAmount and MaxAmount
func (c Config) AmountInRange(d decimal.Decimal) bool {
	c = c.withDefaults()
	return d.GreaterThan(c.MinAmount) && d.LessThan(c.MaxAmount)
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = d.DefaultCurrency
	}
	if c.SupplierScanLines <= 0 {
		c.SupplierScanLines = d.SupplierScanLines
	}
	if c.SupplierMinLength <= 0 {
		c.SupplierMinLength = d.SupplierMinLength
	}
	if c.SupplierMaxLength <= 0 {
		c.SupplierMaxLength = d.SupplierMaxLength
	}
	if c.ItemMinLength <= 0 {
		c.ItemMinLength = d.ItemMinLength
	}
	if c.ItemMaxLength <= 0 {
		c.ItemMaxLength = d.ItemMaxLength
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.MinDocumentNumberLength <= 0 {
		c.MinDocumentNumberLength = d.MinDocumentNumberLength
	}
	if c.MaxAmount.IsZero() {
		c.MaxAmount = d.MaxAmount
	}
	return c
}
