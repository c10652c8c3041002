package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/albaran-tracker/internal/albaran"
	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/processing"
	"github.com/zombor/albaran-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("albaran-tracker")
	var (
		_           = fs.StringLong("config", "", "Config file (optional)")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "albaran-tracker.db", "Database file path")
		storageType = fs.StringLong("storage", "local", "Image storage: 'local' or 'gcs'")
		storagePath = fs.StringLong("storage-path", "./albaranes", "Storage directory path for local storage")
		gcsBucket   = fs.StringLong("gcs-bucket", "", "GCS bucket for gcs storage")
		gcsPrefix   = fs.StringLong("gcs-prefix", "albaranes", "Object prefix for gcs storage")
		providers   = fs.StringLong("providers", "tesseract,gemini", "OCR providers in priority order: tesseract, ollama, gemini, openai, documentai, textract")
		minText     = fs.StringLong("min-text-length", "", "Per provider usable text threshold, e.g. 'ollama=20,textract=5'")
		rateLimit   = fs.Float64Long("provider-rate", 0, "Maximum requests per second to each provider (0 = unlimited)")

		tesseractBin  = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary")
		tesseractLang = fs.StringLong("tesseract-lang", "spa+eng", "Tesseract languages")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama model name (e.g., qwen2.5vl, llava:1.6, minicpm-v)")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiURL     = fs.StringLong("openai-url", "", "OpenAI compatible base URL")
		openaiModel   = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		docaiProject  = fs.StringLong("documentai-project", "", "Document AI project id")
		docaiLocation = fs.StringLong("documentai-location", "eu", "Document AI location")
		docaiProc     = fs.StringLong("documentai-processor", "", "Document AI processor id")
		docaiKey      = fs.StringLong("documentai-key", "", "Document AI API key (default credentials when empty)")
		awsRegion     = fs.StringLong("textract-region", "eu-west-1", "AWS region for Textract")
		awsKey        = fs.StringLong("textract-access-key", "", "AWS access key id (default chain when empty)")
		awsSecret     = fs.StringLong("textract-secret-key", "", "AWS secret access key")

		currency  = fs.StringLong("currency", extraction.DefaultCurrency, "Currency reported when no provider detects one")
		maxItems  = fs.IntLong("max-items", 8, "Maximum line items per document")
		maxAmount = fs.StringLong("max-amount", "999999", "Amounts at or above this are ignored")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ALBARAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx := context.Background()

	maxAmountValue, err := decimal.NewFromString(*maxAmount)
	if err != nil {
		slog.Error("Invalid max amount", "value", *maxAmount, "error", err)
		os.Exit(1)
	}
	thresholds, err := parseThresholds(*minText)
	if err != nil {
		slog.Error("Invalid min text length", "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := albaran.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR providers
	chain, err := scanning.NewChain(ctx, scanning.ChainConfig{
		Providers:       scanning.ParseProviders(*providers),
		MinTextLength:   thresholds,
		RatePerSecond:   *rateLimit,
		TesseractBinary: *tesseractBin,
		TesseractLang:   *tesseractLang,
		OllamaURL:       *ollamaURL,
		OllamaModel:     *ollamaModel,
		GeminiKey:       firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     *geminiModel,
		OpenAIKey:       firstNonEmpty(*openaiKey, os.Getenv("OPENAI_API_KEY")),
		OpenAIURL:       *openaiURL,
		OpenAIModel:     *openaiModel,
		DocumentAI: scanning.DocumentAIConfig{
			ProjectID:   *docaiProject,
			Location:    *docaiLocation,
			ProcessorID: *docaiProc,
			APIKey:      *docaiKey,
		},
		Textract: scanning.TextractConfig{
			Region:          *awsRegion,
			AccessKeyID:     *awsKey,
			SecretAccessKey: *awsSecret,
		},
	})
	if err != nil {
		slog.Error("Failed to initialize OCR providers", "error", err)
		os.Exit(1)
	}
	defer scanning.CloseAll(chain)
	if len(chain) == 0 {
		slog.Warn("No OCR providers configured, every document will fail")
	}

	// Initialize storage
	slog.Info("Initializing storage...", "type", *storageType)
	var store albaran.Storage
	switch *storageType {
	case "local":
		store, err = albaran.NewLocalStorage(*storagePath)
	case "gcs":
		var gcs *albaran.GCSStorage
		gcs, err = albaran.NewGCSStorage(ctx, *gcsBucket, *gcsPrefix)
		if err == nil {
			defer gcs.Close()
			store = gcs
		}
	default:
		err = fmt.Errorf("invalid storage type %q, valid: local or gcs", *storageType)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	extractor := extraction.New(extraction.Config{
		DefaultCurrency: strings.ToUpper(*currency),
		MaxItems:        *maxItems,
		MaxAmount:       maxAmountValue,
	})

	// Initialize service
	orchestrator := processing.New(db, extractor, chain...)
	service := albaran.NewService(db, store, orchestrator, extractor)

	// Initialize server
	basicAuth := albaran.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := albaran.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseThresholds reads "name=n,name=n"
func parseThresholds(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=length, got %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid length for %s: %q", name, value)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = n
	}
	return out, nil
}
