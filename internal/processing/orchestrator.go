package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/scanning"
)

// StatusStore persists a document's status. Each call must be a single atomic write
// keyed by id.
type StatusStore interface {
	UpdateStatus(id string, status Status) error
}

// Orchestrator runs the provider fallback chain for a document
type Orchestrator struct {
	store     StatusStore
	extractor *extraction.Extractor
	scanners  []scanning.Scanner
}

// New creates an Orchestrator. Scanners are tried in the order given. A nil extractor
// uses the default thresholds.
func New(store StatusStore, extractor *extraction.Extractor, scanners ...scanning.Scanner) *Orchestrator {
	if extractor == nil {
		extractor = extraction.New(extraction.DefaultConfig())
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		scanners:  scanners,
	}
}

// Providers returns the chain's provider names in priority order
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.scanners))
	for _, s := range o.scanners {
		names = append(names, s.Name())
	}
	return names
}

// Process moves the document to processing, tries each provider in turn and
// extracts fields from the first usable text. The document ends completed or
// failed. Providers run to completion even if ctx is canceled; the caller just
// stops waiting.
func (o *Orchestrator) Process(ctx context.Context, id string, img scanning.Image) Result {
	ctx = context.WithoutCancel(ctx)
	if img.ID == "" {
		img.ID = id
	}

	if err := o.setStatus(id, StatusProcessing); errors.Is(err, ErrInvalidTransition) {
		// Another attempt owns the document, or it was never reset to pending
		msg := fmt.Sprintf("document cannot start processing: %v", err)
		slog.Error("document not processed", "document_id", id, "error", err)
		return Result{Success: false, Error: &msg, NotStarted: true}
	}

	attempts := make([]Attempt, 0, len(o.scanners))
	for _, s := range o.scanners {
		start := time.Now()
		rec, err := scanning.Recognize(ctx, s, img)
		attempt := Attempt{Provider: s.Name(), Duration: time.Since(start)}

		if err != nil {
			attempt.Reason = scanning.ReasonTransport
			var unusable *scanning.UnusableError
			if errors.As(err, &unusable) {
				attempt.Reason = unusable.Reason
			}
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)

			slog.Warn("provider unusable",
				"provider", s.Name(),
				"document_id", id,
				"reason", attempt.Reason,
				"duration_ms", attempt.Duration.Milliseconds(),
				"error", err,
			)
			continue
		}
		attempts = append(attempts, attempt)

		fields := o.extractor.Extract(rec.Text).Overlay(rec.Fields, o.extractor.Config())
		text := rec.Text

		o.setStatus(id, StatusCompleted)
		slog.Info("document processed",
			"document_id", id,
			"provider", rec.Provider,
			"attempts", len(attempts),
			"text_length", len(text),
		)

		return Result{
			Success:    true,
			Data:       &fields,
			RawText:    &text,
			Provider:   rec.Provider,
			Confidence: rec.Confidence,
			Attempts:   attempts,
		}
	}

	msg := exhaustionMessage(attempts)
	slog.Error("all providers failed", "document_id", id, "attempts", len(attempts), "error", msg)
	o.setStatus(id, StatusFailed)

	return Result{
		Success:  false,
		Error:    &msg,
		Attempts: attempts,
	}
}

// setStatus writes through to the store. A failed write is logged and returned; only a
// refused move into processing stops the chain.
func (o *Orchestrator) setStatus(id string, status Status) error {
	if o.store == nil {
		return nil
	}
	err := o.store.UpdateStatus(id, status)
	if err != nil {
		slog.Warn("updating document status", "document_id", id, "status", status, "error", err)
	}
	return err
}

func exhaustionMessage(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no OCR providers configured"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Error)
	}
	return fmt.Sprintf("all %d OCR providers failed: %s", len(attempts), strings.Join(parts, "; "))
}
