package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// EnvOpenAIAPIKey is consulted when no API key is configured
const EnvOpenAIAPIKey = "OPENAI_API_KEY"

// OpenAIProvider sends the prompt as a single user message to the chat completions API
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIProvider creates a chat generator. baseURL targets compatible servers.
func NewOpenAIProvider(apiKey, baseURL, model string, temperature float32, maxTokens int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrMissingAPIKey, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := validatePrompt(prompt); err != nil {
		return "", err
	}

	text, err := withRetry(ctx, func(ctx context.Context) (string, error) {
		return o.call(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("%w (%s): %w", ErrProviderFailed, ProviderOpenAI, err)
	}
	return text, nil
}

func (o *OpenAIProvider) call(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if o.maxTokens > 0 {
		req.MaxCompletionTokens = o.maxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
			return "", permanent(err)
		}
		return "", fmt.Errorf("api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
