package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	minTextLength int
	timeout       time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Transcription should not be creative
	model.SetTemperature(0)

	return &Gemini{
		client:        client,
		model:         model,
		minTextLength: DefaultMinTextLength,
		timeout:       60 * time.Second,
	}, nil
}

// WithMinTextLength overrides the usable text threshold
func (g *Gemini) WithMinTextLength(n int) *Gemini {
	if n > 0 {
		g.minTextLength = n
	}
	return g
}

func (g *Gemini) Name() string       { return "gemini" }
func (g *Gemini) MinTextLength() int { return g.minTextLength }

// Scan transcribes the document text
func (g *Gemini) Scan(ctx context.Context, img Image) (*Recognition, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pngData, err := preparePNG(img)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the format suffix, not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(transcriptionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return &Recognition{
		Text:     cleanTranscript(text.String()),
		Provider: g.Name(),
	}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
