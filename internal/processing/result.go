package processing

import (
	"time"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/scanning"
)

// Result is the outcome of one processing attempt. Only the first four fields are part
// of the JSON contract; the rest is metadata for persistence.
type Result struct {
	Success bool               `json:"success"`
	Data    *extraction.Fields `json:"data"`
	RawText *string            `json:"rawText"`
	Error   *string            `json:"error"`

	Provider   string    `json:"-"`
	Confidence *float64  `json:"-"`
	Attempts   []Attempt `json:"-"`

	// NotStarted is set when the document could not be moved to processing; its
	// stored record belongs to someone else and must not be overwritten
	NotStarted bool `json:"-"`
}

// Attempt records one provider call
type Attempt struct {
	Provider string          `json:"provider"`
	Reason   scanning.Reason `json:"reason,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Succeeded reports whether the provider yielded usable text
func (a Attempt) Succeeded() bool {
	return a.Error == ""
}
