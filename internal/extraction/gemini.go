package extraction

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cashly/internal/core"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// generator is the part of *genai.Models the extractor calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor sends the receipt image inline to a Gemini model and asks
// for the analysis JSON directly.
type GeminiExtractor struct {
	models generator
	model  string
}

func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiExtractor{models: client.Models, model: model}, nil
}

func (x *GeminiExtractor) Extract(ctx context.Context, img Image) (Result, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt()},
				{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			},
		},
	}

	resp, err := x.models.GenerateContent(ctx, x.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: generate content: %w", ErrExtraction, err)
	}

	raw := resp.Text()
	if raw == "" {
		return Result{}, fmt.Errorf("%w: empty response from model", ErrExtraction)
	}
	return decodeResponse([]byte(cleanModelJSON(raw)))
}

func receiptPrompt() string {
	names := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		names[i] = string(c)
	}
	return "You are a receipt parser.\n\n" +
		"Task:\n" +
		"- Read the attached receipt image and list every purchase on it.\n" +
		"- Output STRICT JSON only, shaped as {\"analysis\":{\"expenses\":[...]}}.\n\n" +
		"Each expense must have these fields:\n" +
		"- \"merchant_name\": string or null\n" +
		"- \"amount\": number, positive, in major currency units\n" +
		"- \"currency\": ISO 4217 code, e.g. \"INR\"\n" +
		"- \"category\": one of " + strings.Join(names, ", ") + "\n" +
		"- \"date\": \"YYYY-MM-DD\" or null\n" +
		"- \"description\": short string\n" +
		"- \"confidence\": number between 0 and 1\n\n" +
		"If the image is not a receipt, return {\"error\":\"not a receipt\"}.\n" +
		"Do NOT wrap the response in code fences.\n"
}

// cleanModelJSON strips Markdown fences and surrounding chatter from a model reply.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
