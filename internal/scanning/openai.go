package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI implements the Scanner interface using an OpenAI compatible vision model
type OpenAI struct {
	client        openai.Client
	model         string
	minTextLength int
}

// NewOpenAI creates a new OpenAI Scanner instance. baseURL may point at any
// OpenAI compatible endpoint; it defaults to api.openai.com.
func NewOpenAI(apiKey, baseURL, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/"
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 90 * time.Second}),
		// the fallback chain is the retry policy
		option.WithMaxRetries(0),
	)

	return &OpenAI{
		client:        client,
		model:         modelName,
		minTextLength: DefaultMinTextLength,
	}, nil
}

// WithMinTextLength overrides the usable text threshold
func (o *OpenAI) WithMinTextLength(n int) *OpenAI {
	if n > 0 {
		o.minTextLength = n
	}
	return o
}

func (o *OpenAI) Name() string       { return "openai" }
func (o *OpenAI) MinTextLength() int { return o.minTextLength }

// Scan transcribes the document text
func (o *OpenAI) Scan(ctx context.Context, img Image) (*Recognition, error) {
	data, mimeType, err := preparePassthrough(img, "image/png", "image/jpeg", "image/webp", "image/gif")
	if err != nil {
		return nil, err
	}

	imageURL := openai.ChatCompletionContentPartImageImageURLParam{
		URL:    "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Detail: "high",
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       o.model,
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are an OCR engine. You output the text of documents and nothing else."),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(transcriptionPrompt),
				openai.ImageContentPart(imageURL),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	return &Recognition{
		Text:     cleanTranscript(completion.Choices[0].Message.Content),
		Provider: o.Name(),
	}, nil
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
