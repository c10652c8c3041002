// albaran-extract runs the field extractor outside the server. It reads OCR text from a
// file or stdin, or with --image runs the provider chain on an image first.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/processing"
	"github.com/zombor/albaran-tracker/internal/scanning"
)

func main() {
	fs := ff.NewFlagSet("albaran-extract")
	var (
		image         = fs.StringLong("image", "", "Image to OCR instead of reading text")
		providers     = fs.StringLong("providers", "tesseract", "OCR providers in priority order when --image is set")
		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "spa+eng", "Tesseract languages")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama model name")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key")
		currency      = fs.StringLong("currency", extraction.DefaultCurrency, "Currency reported when none is detected")
		verbose       = fs.BoolLong("verbose", "Log provider attempts to stderr")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("ALBARAN")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	extractor := extraction.New(extraction.Config{DefaultCurrency: *currency})

	if *image == "" {
		text, err := readText(fs.GetArgs())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printJSON(extractor.Extract(text))
		return
	}

	data, err := os.ReadFile(*image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	chain, err := scanning.NewChain(ctx, scanning.ChainConfig{
		Providers:       scanning.ParseProviders(*providers),
		TesseractBinary: *tesseractBin,
		TesseractLang:   *tesseractLang,
		OllamaURL:       *ollamaURL,
		OllamaModel:     *ollamaModel,
		GeminiKey:       *geminiKey,
		OpenAIKey:       *openaiKey,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer scanning.CloseAll(chain)

	result := processing.New(nil, extractor, chain...).Process(ctx, filepath.Base(*image), scanning.Image{
		ID:          filepath.Base(*image),
		Data:        data,
		ContentType: mime.TypeByExtension(filepath.Ext(*image)),
	})
	printJSON(result)
	if !result.Success {
		os.Exit(2)
	}
}

func readText(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
