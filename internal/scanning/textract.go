package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/zombor/albaran-tracker/internal/extraction"
)

// TextractAPI is the part of the Textract client the scanner uses
type TextractAPI interface {
	AnalyzeExpense(ctx context.Context, params *textract.AnalyzeExpenseInput, optFns ...func(*textract.Options)) (*textract.AnalyzeExpenseOutput, error)
}

// Textract implements the Scanner interface with AWS Textract AnalyzeExpense
type Textract struct {
	client        TextractAPI
	minTextLength int
}

// TextractConfig configures the AWS client. Empty keys fall back to the default
// credential chain (env, shared config, instance role).
type TextractConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewTextract creates a Textract scanner
func NewTextract(ctx context.Context, cfg TextractConfig) (*Textract, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return NewTextractWithClient(textract.NewFromConfig(awsCfg)), nil
}

// NewTextractWithClient creates a Textract scanner with a custom client (for testing)
func NewTextractWithClient(client TextractAPI) *Textract {
	return &Textract{
		client:        client,
		minTextLength: StructuredMinTextLength,
	}
}

// WithMinTextLength overrides the usable text threshold
func (t *Textract) WithMinTextLength(n int) *Textract {
	if n > 0 {
		t.minTextLength = n
	}
	return t
}

func (t *Textract) Name() string       { return "textract" }
func (t *Textract) MinTextLength() int { return t.minTextLength }

// Scan analyzes the image as an expense document
func (t *Textract) Scan(ctx context.Context, img Image) (*Recognition, error) {
	data, _, err := preparePassthrough(img, "image/jpeg", "image/png", "image/tiff", "application/pdf")
	if err != nil {
		return nil, err
	}

	out, err := t.client.AnalyzeExpense(ctx, &textract.AnalyzeExpenseInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing expense: %w", err)
	}

	return recognitionFromExpense(out), nil
}

// Close is a no-op
func (t *Textract) Close() error {
	return nil
}

func recognitionFromExpense(out *textract.AnalyzeExpenseOutput) *Recognition {
	rec := &Recognition{Provider: "textract"}
	if out == nil || len(out.ExpenseDocuments) == 0 {
		return rec
	}

	var lines []string
	var confSum float64
	var confN int
	for _, doc := range out.ExpenseDocuments {
		for _, b := range doc.Blocks {
			if b.BlockType != types.BlockTypeLine || b.Text == nil {
				continue
			}
			lines = append(lines, *b.Text)
			if b.Confidence != nil {
				confSum += float64(*b.Confidence)
				confN++
			}
		}
	}
	rec.Text = strings.Join(lines, "\n")
	if confN > 0 {
		conf := confSum / float64(confN) / 100
		rec.Confidence = &conf
	}

	// One photo is one document; later pages add nothing to the summary
	rec.Fields = fieldsFromExpense(out.ExpenseDocuments[0])
	return rec
}

func fieldsFromExpense(doc types.ExpenseDocument) *extraction.Fields {
	fields := &extraction.Fields{}
	found := false

	for _, f := range doc.SummaryFields {
		text := expenseValue(f)
		switch expenseType(f) {
		case "VENDOR_NAME":
			found = setString(&fields.Supplier, text) || found
		case "INVOICE_RECEIPT_ID":
			found = setString(&fields.DocumentNumber, text) || found
		case "INVOICE_RECEIPT_DATE":
			found = setString(&fields.DocumentDate, text) || found
		case "TAX_PAYER_ID", "VENDOR_VAT_NUMBER":
			found = setString(&fields.TaxID, text) || found
		case "TOTAL", "AMOUNT_DUE":
			if fields.TotalAmount != nil {
				continue
			}
			// A zero or implausible TOTAL is skipped so a later one can win
			amount := extraction.ParseLooseAmount(text)
			if amount == nil || !extraction.DefaultConfig().AmountInRange(amount.Decimal) {
				continue
			}
			fields.TotalAmount = amount
			found = true
			if f.Currency != nil && f.Currency.Code != nil && fields.Currency == "" {
				fields.Currency = *f.Currency.Code
			}
		}
	}

	for _, group := range doc.LineItemGroups {
		for _, li := range group.LineItems {
			var item extraction.LineItem
			for _, f := range li.LineItemExpenseFields {
				text := expenseValue(f)
				switch expenseType(f) {
				case "ITEM":
					item.Description = text
				case "QUANTITY":
					item.Quantity = extraction.ParseLooseAmount(text)
				case "UNIT_PRICE":
					item.UnitPrice = extraction.ParseLooseAmount(text)
				case "PRICE":
					item.TotalPrice = extraction.ParseLooseAmount(text)
				}
			}
			if item.Description != "" {
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

func expenseType(f types.ExpenseField) string {
	if f.Type == nil {
		return ""
	}
	return aws.ToString(f.Type.Text)
}

func expenseValue(f types.ExpenseField) string {
	if f.ValueDetection == nil {
		return ""
	}
	return strings.TrimSpace(aws.ToString(f.ValueDetection.Text))
}
