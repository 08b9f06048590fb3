package generator

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// OllamaProvider calls an Ollama server:
// POST /api/generate {"model", "prompt", "stream": false} returns {"response"}
type OllamaProvider struct {
	client  *resty.Client
	model   string
	options map[string]any
}

// NewOllamaProvider creates a generator for the Ollama server at baseURL.
// options are passed through as Ollama model options (temperature, num_predict, ...).
func NewOllamaProvider(baseURL, model string, options map[string]any) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OllamaProvider{client: client, model: model, options: options}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := validatePrompt(prompt); err != nil {
		return "", err
	}

	text, err := withRetry(ctx, func(ctx context.Context) (string, error) {
		return o.call(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("%w (%s): %w", ErrProviderFailed, ProviderOllama, err)
	}
	return text, nil
}

func (o *OllamaProvider) call(ctx context.Context, prompt string) (string, error) {
	var result ollamaResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false, Options: o.options}).
		SetResult(&result).
		SetError(&result).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return "", permanentIf(resp.StatusCode(), fmt.Errorf("api error %d: %s", resp.StatusCode(), result.Error))
		}
		return "", httpStatusError(resp)
	}
	if result.Error != "" {
		return "", permanent(fmt.Errorf("api error: %s", result.Error))
	}
	return result.Response, nil
}

func permanentIf(code int, err error) error {
	if permanentStatus(code) {
		return permanent(err)
	}
	return err
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.client.GetClient().CloseIdleConnections()
	return nil
}
