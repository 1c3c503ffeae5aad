// Package genai provides chat completions against OpenAI-compatible endpoints
// (Groq by default) and the per-role model invoker with candidate fallback.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the Groq OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultRequestTimeout bounds a single completion request.
const DefaultRequestTimeout = 90 * time.Second

var (
	ErrMissingAPIKey     = errors.New("LLM API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrNoCandidates      = errors.New("model candidate list is empty")
)

// MessageRole is the author of a conversation turn sent to the model.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of the conversation submitted to the model.
type Message struct {
	Role    MessageRole
	Content string
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user turn.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CompletionRequest binds a conversation to one model and its sampling settings.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completion is the text returned by one successful request.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Completer submits a single completion request to one model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the completion client.
type Opts struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithRequestTimeout bounds each completion request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat chatService
}

// NewClient initializes a completion client. The API key falls back to
// LLM_API_KEY and then GROQ_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{BaseURL: DefaultBaseURL, RequestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	// SDK retries are disabled: fallback across candidates belongs to the Invoker.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	slog.Debug("genai client configured", "base_url", cfg.BaseURL, "timeout", cfg.RequestTimeout)

	cli := openai.NewClient(reqOpts...)
	return &Client{chat: &cli.Chat.Completions}, nil
}

// Complete submits the conversation to the requested model.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toParams(req.Messages),
	}
	params.Temperature = openai.Float(req.Temperature)
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("completion cancelled: %w", ctx.Err())
		}
		return nil, NormalizeError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}
	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// ErrorKind is the normalized category of a provider failure.
type ErrorKind string

const (
	ErrorKindRateLimited      ErrorKind = "rate limited"
	ErrorKindQuotaExceeded    ErrorKind = "quota exceeded"
	ErrorKindModelUnavailable ErrorKind = "model unavailable"
	ErrorKindOther            ErrorKind = "provider error"
)

// ProviderError is a provider failure normalized into a known category.
// Its message leads with the category so substring classification is stable
// across providers.
type ProviderError struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (model %s, status %d): %v", e.Kind, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NormalizeError classifies a raw SDK error.
func NormalizeError(model string, err error) error {
	if err == nil {
		return nil
	}
	pe := &ProviderError{Kind: ErrorKindOther, Model: model, Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "billing"):
		pe.Kind = ErrorKindQuotaExceeded
	case pe.StatusCode == http.StatusTooManyRequests || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		pe.Kind = ErrorKindRateLimited
	case pe.StatusCode == http.StatusNotFound ||
		strings.Contains(msg, "decommission") ||
		strings.Contains(msg, "deprecated") ||
		strings.Contains(msg, "model_not_found") ||
		strings.Contains(msg, "does not exist") ||
		(strings.Contains(msg, "model") && strings.Contains(msg, "invalid")):
		pe.Kind = ErrorKindModelUnavailable
	case pe.StatusCode == http.StatusServiceUnavailable:
		pe.Kind = ErrorKindModelUnavailable
	}
	return pe
}

// IsRateLimited reports whether err stems from rate limiting or quota exhaustion.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == ErrorKindRateLimited || pe.Kind == ErrorKindQuotaExceeded
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "quota")
}
