package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
)

// ChainConfig holds the settings of every known provider. Only the providers named in
// Providers are built, in that order.
type ChainConfig struct {
	Providers []string

	// MinTextLength overrides the usable text threshold per provider name
	MinTextLength map[string]int
	// RatePerSecond limits calls to each provider. Zero means unlimited.
	RatePerSecond float64

	TesseractBinary string
	TesseractLang   string

	OllamaURL   string
	OllamaModel string

	GeminiKey   string
	GeminiModel string

	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string

	DocumentAI DocumentAIConfig
	Textract   TextractConfig
}

// ParseProviders splits a comma separated provider list. Names are lower-cased and
// duplicates dropped, keeping the first position.
func ParseProviders(list string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// NewChain builds the scanners named in cfg.Providers. If any of them can't be built the
// ones already created are closed.
func NewChain(ctx context.Context, cfg ChainConfig) ([]Scanner, error) {
	var chain []Scanner
	for _, name := range cfg.Providers {
		s, err := newScanner(ctx, name, cfg)
		if err != nil {
			closeAll(chain)
			return nil, fmt.Errorf("building %s provider: %w", name, err)
		}
		if cfg.RatePerSecond > 0 {
			s = Limit(s, rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1))
		}
		slog.Info("OCR provider enabled", "provider", s.Name(), "position", len(chain)+1, "min_text_length", s.MinTextLength())
		chain = append(chain, s)
	}
	return chain, nil
}

func newScanner(ctx context.Context, name string, cfg ChainConfig) (Scanner, error) {
	minText := cfg.MinTextLength[name]

	switch name {
	case "tesseract":
		return NewTesseract(cfg.TesseractBinary, cfg.TesseractLang).WithMinTextLength(minText), nil
	case "ollama":
		s, err := NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return s.WithMinTextLength(minText), nil
	case "gemini":
		s, err := NewGemini(cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return s.WithMinTextLength(minText), nil
	case "openai":
		s, err := NewOpenAI(cfg.OpenAIKey, cfg.OpenAIURL, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return s.WithMinTextLength(minText), nil
	case "documentai":
		s, err := NewDocumentAI(ctx, cfg.DocumentAI)
		if err != nil {
			return nil, err
		}
		return s.WithMinTextLength(minText), nil
	case "textract":
		s, err := NewTextract(ctx, cfg.Textract)
		if err != nil {
			return nil, err
		}
		return s.WithMinTextLength(minText), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// CloseAll closes every scanner in the chain and joins the errors
func CloseAll(chain []Scanner) error {
	return closeAll(chain)
}

func closeAll(chain []Scanner) error {
	var errs []error
	for _, s := range chain {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
