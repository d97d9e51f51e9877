package generate

import (
	"context"
	"fmt"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/logging"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
// BaseURL lets it target local servers and proxies.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGenerator builds the client from opts.
func NewOpenAIGenerator(opts Options) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or llm.api_key", ErrMissingAPIKey)
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	logging.API("Initializing OpenAI generator: model=%s base_url=%s", model, cfg.BaseURL)
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
	start := time.Now()
	logging.APIDebug("[OpenAI] Generate: model=%s source=%s test=%s", g.model, req.SourcePath, req.TestPath)

	chat := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		chat.MaxCompletionTokens = g.maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		logging.APIError("[OpenAI] API call failed for %s: %v", req.SourcePath, err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}

	code := ExtractCode(resp.Choices[0].Message.Content)
	if code == "" {
		return "", ErrEmptyResponse
	}
	logging.APIDebug("[OpenAI] Generate: %s done in %v, finish_reason=%s, %d bytes",
		req.SourcePath, time.Since(start), resp.Choices[0].FinishReason, len(code))
	return code, nil
}
