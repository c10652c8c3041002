package scanning

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zombor/albaran-tracker/internal/extraction"
)

// Minimum usable text lengths. Structured providers return cleaner text and are
// held to a lower bar.
const (
	DefaultMinTextLength    = 10
	StructuredMinTextLength = 5
)

// Image is a document photo or scan handed to a provider
type Image struct {
	ID          string
	Data        []byte
	ContentType string
}

// Recognition is what a provider read from an image
type Recognition struct {
	Text       string
	Provider   string
	Confidence *float64
	// Fields is only set by providers that segment the document themselves
	Fields *extraction.Fields
}

// Scanner defines the interface for OCR and document processing providers
type Scanner interface {
	// Name identifies the provider in logs and persisted metadata
	Name() string
	// MinTextLength is the shortest trimmed text the provider may return and still be usable
	MinTextLength() int
	// Scan reads the text of an image
	Scan(ctx context.Context, img Image) (*Recognition, error)
	// Close releases resources
	Close() error
}

// Recognize runs one provider and reports whether its output is usable. Every failure,
// including a panic inside the provider, comes back as an *UnusableError.
func Recognize(ctx context.Context, s Scanner, img Image) (rec *Recognition, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = &UnusableError{Provider: s.Name(), Reason: ReasonTransport, Err: fmt.Errorf("provider panic: %v", r)}
		}
	}()

	rec, err = s.Scan(ctx, img)
	if err != nil {
		return nil, &UnusableError{Provider: s.Name(), Reason: ReasonTransport, Err: err}
	}
	if rec == nil {
		return nil, &UnusableError{Provider: s.Name(), Reason: ReasonInsufficientText, Err: ErrInsufficientText}
	}

	rec.Text = strings.TrimSpace(rec.Text)
	if n := utf8.RuneCountInString(rec.Text); n < s.MinTextLength() {
		return nil, &UnusableError{
			Provider: s.Name(),
			Reason:   ReasonInsufficientText,
			Err:      fmt.Errorf("%w: got %d characters, need %d", ErrInsufficientText, n, s.MinTextLength()),
		}
	}
	if rec.Provider == "" {
		rec.Provider = s.Name()
	}
	return rec, nil
}
