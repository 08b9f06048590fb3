package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen2.5:0.5b"
	DefaultOpenAIModel = "gpt-4o-mini"

	DefaultTimeout = 120 * time.Second

	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

var (
	// ErrEmptyPrompt is returned when Generate is called without a prompt
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrProviderFailed is returned when the language model call fails
	ErrProviderFailed = errors.New("generation provider failed")
	// ErrMissingAPIKey is returned when a hosted provider has no API key
	ErrMissingAPIKey = errors.New("api key not configured")
	// ErrUnsupportedProvider is returned by New for unknown providers
	ErrUnsupportedProvider = errors.New("unsupported generation provider")
)

// Generator produces a completion for a prompt
type Generator interface {
	// Generate returns the model's answer to prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the generator
	Close() error
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// permanentError marks failures a retry cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// permanentStatus reports whether an HTTP status will fail the same way on retry
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func httpStatusError(resp *resty.Response) error {
	err := errors.New(resp.Status() + ": " + resp.String())
	if permanentStatus(resp.StatusCode()) {
		return permanent(err)
	}
	return err
}

// withRetry calls fn with exponential backoff until it succeeds, fails
// permanently or runs out of attempts
func withRetry(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	backoff := retry.WithMaxRetries(maxAttempts-1,
		retry.WithCappedDuration(maxBackoff, retry.NewExponential(baseBackoff)))

	var out string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		text, err := fn(ctx)
		if err == nil {
			out = text
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	return out, nil
}
