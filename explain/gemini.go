package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vinayprograms/fleetkit/decision"
)

// GeminiProvider phrases explanations with the official Google Gemini SDK.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// NewGeminiProvider creates a Gemini phrasing provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for gemini")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for gemini")
	}
	if cfg.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required for gemini")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	maxTokens := int32(cfg.MaxTokens)
	model.MaxOutputTokens = &maxTokens
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &GeminiProvider{client: client, model: model}, nil
}

// Explain implements the Provider interface.
func (p *GeminiProvider) Explain(ctx context.Context, d decision.Decision) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt(d)))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return strings.TrimSpace(text), nil
}

// Close closes the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
