package transform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	// BaseURL of an OpenAI-compatible API, e.g. http://localhost:11434/v1
	// for Ollama.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client // optional (tests)
}

// OpenAIClient transforms segments with a chat completion model.
type OpenAIClient struct {
	model       string
	temperature float64
	client      openai.Client
}

// NewOpenAIClient returns a client. Retries are left to the Driver.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.APIKey == "" {
		// Local servers such as Ollama ignore the key but the SDK wants one.
		cfg.APIKey = "ollama"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
	}
}

// Transform implements Transformer.
func (c *OpenAIClient) Transform(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(req.Genre, req.TargetLanguage)),
			openai.UserMessage(UserPrompt(req)),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies that the endpoint answers and knows the model.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", mapOpenAIError(err))
	}
	for _, m := range page.Data {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not served by the endpoint", c.model)
}

// mapOpenAIError turns API errors into messages and marks client errors
// other than rate limiting as not worth retrying.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := fmt.Errorf("transform service error (status %d): %s", apiErr.StatusCode, apiErr.Message)
	if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests && apiErr.StatusCode != http.StatusRequestTimeout {
		return retry.Unrecoverable(msg)
	}
	return msg
}

var _ Transformer = (*OpenAIClient)(nil)
