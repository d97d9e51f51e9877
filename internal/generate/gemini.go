package generate

import (
	"context"
	"fmt"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/logging"

	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini API through the official genai client.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewGeminiGenerator builds the client from opts.
func NewGeminiGenerator(ctx context.Context, opts Options) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY or llm.api_key", ErrMissingAPIKey)
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logging.API("Initializing Gemini generator: model=%s", model)
	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
	start := time.Now()
	logging.APIDebug("[Gemini] Generate: model=%s source=%s test=%s", g.model, req.SourcePath, req.TestPath)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(req), genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(UserPrompt(req), genai.RoleUser)},
		cfg,
	)
	if err != nil {
		logging.APIError("[Gemini] API call failed for %s: %v", req.SourcePath, err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	code := ExtractCode(resp.Text())
	if code == "" {
		return "", ErrEmptyResponse
	}
	logging.APIDebug("[Gemini] Generate: %s done in %v, %d bytes", req.SourcePath, time.Since(start), len(code))
	return code, nil
}
