package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Role names used for per-role model settings.
const (
	RoleStoryteller  = "storyteller"
	RoleJudge        = "judge"
	RoleConversation = "conversation"
)

// DefaultCandidates is the fallback order used when no model list is configured.
var DefaultCandidates = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"mixtral-8x7b-32768",
}

// RoleConfig fixes the candidate list and sampling settings for one role.
type RoleConfig struct {
	Name        string
	Candidates  []string
	Temperature float64
	MaxTokens   int
}

// DefaultRoleConfig returns the stock settings for a role.
func DefaultRoleConfig(role string) RoleConfig {
	cfg := RoleConfig{Name: role, Candidates: append([]string(nil), DefaultCandidates...)}
	switch role {
	case RoleStoryteller:
		cfg.Temperature, cfg.MaxTokens = 0.8, 700
	case RoleJudge:
		cfg.Temperature, cfg.MaxTokens = 0.3, 300
	default:
		cfg.Temperature, cfg.MaxTokens = 0.7, 300
	}
	return cfg
}

// retryableMarkers are matched case-insensitively against failure messages.
var retryableMarkers = []string{
	"rate limit",
	"rate_limit",
	"429",
	"too many requests",
	"quota",
	"token limit",
	"tokens per",
	"decommission",
	"deprecated",
	"model_not_found",
	"model not found",
	"does not exist",
	"invalid model",
	"model_invalid",
	"unavailable",
}

// IsRetryable reports whether a failed attempt should fall through to the next candidate.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Attempt is the metadata of one call to one candidate.
type Attempt struct {
	Role             string
	Model            string
	Latency          time.Duration
	PromptTokens     int64
	CompletionTokens int64
	Err              error
}

// InvocationResult is the outcome of a successful invocation.
type InvocationResult struct {
	RawText   string
	ModelUsed string
	Attempts  []Attempt
}

// ModelExhaustedError is returned when no candidate produced a completion.
type ModelExhaustedError struct {
	Role  string
	Tried []string
	Last  error
}

func (e *ModelExhaustedError) Error() string {
	return fmt.Sprintf("all models failed for %s (tried %s): %v", e.Role, strings.Join(e.Tried, ", "), e.Last)
}

func (e *ModelExhaustedError) Unwrap() error {
	return e.Last
}

// AttemptObserver receives metadata for every attempt, successful or not.
type AttemptObserver func(Attempt)

// LogAttempt is the default observer; it writes one structured log entry per attempt.
func LogAttempt(a Attempt) {
	if a.Err != nil {
		slog.Warn("Invoker attempt failed", "role", a.Role, "model", a.Model, "latency_ms", a.Latency.Milliseconds(), "error", a.Err)
		return
	}
	slog.Debug("Invoker attempt succeeded", "role", a.Role, "model", a.Model, "latency_ms", a.Latency.Milliseconds(),
		"prompt_tokens", a.PromptTokens, "completion_tokens", a.CompletionTokens)
}

// Caller is implemented by anything that can run a conversation through a role's models.
type Caller interface {
	Invoke(ctx context.Context, messages []Message) (InvocationResult, error)
}

// InvokerOpts holds optional invoker settings.
type InvokerOpts struct {
	Observer AttemptObserver
}

// InvokerOption configures an Invoker.
type InvokerOption func(*InvokerOpts)

// WithObserver replaces the default logging observer.
func WithObserver(obs AttemptObserver) InvokerOption {
	return func(o *InvokerOpts) { o.Observer = obs }
}

// Invoker runs conversations for one role, falling back across its candidates.
// It is safe for concurrent use; its configuration is read-only after construction.
type Invoker struct {
	client      Completer
	role        string
	candidates  []string
	temperature float64
	maxTokens   int
	observer    AttemptObserver
}

// NewInvoker creates an Invoker for the given role configuration.
func NewInvoker(client Completer, cfg RoleConfig, opts ...InvokerOption) (*Invoker, error) {
	if client == nil {
		return nil, fmt.Errorf("invoker %s: completer is nil", cfg.Name)
	}
	var candidates []string
	for _, c := range cfg.Candidates {
		if c = strings.TrimSpace(c); c != "" {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("invoker %s: %w", cfg.Name, ErrNoCandidates)
	}
	o := InvokerOpts{Observer: LogAttempt}
	for _, opt := range opts {
		opt(&o)
	}
	return &Invoker{
		client:      client,
		role:        cfg.Name,
		candidates:  candidates,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		observer:    o.Observer,
	}, nil
}

// Role returns the role name.
func (inv *Invoker) Role() string { return inv.role }

// Candidates returns a copy of the candidate list, active model first.
func (inv *Invoker) Candidates() []string {
	return append([]string(nil), inv.candidates...)
}

// Invoke submits the conversation to each candidate in order until one succeeds.
// Retryable failures move on immediately to the next candidate; any other failure,
// or a failure of the last candidate, ends the invocation with a ModelExhaustedError.
func (inv *Invoker) Invoke(ctx context.Context, messages []Message) (InvocationResult, error) {
	var (
		attempts []Attempt
		tried    []string
	)
	for i, model := range inv.candidates {
		if err := ctx.Err(); err != nil {
			return InvocationResult{Attempts: attempts}, fmt.Errorf("%s invocation cancelled: %w", inv.role, err)
		}

		start := time.Now()
		resp, err := inv.client.Complete(ctx, CompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: inv.temperature,
			MaxTokens:   inv.maxTokens,
		})
		a := Attempt{Role: inv.role, Model: model, Latency: time.Since(start), Err: err}
		if resp != nil {
			a.PromptTokens, a.CompletionTokens = resp.PromptTokens, resp.CompletionTokens
		}
		attempts = append(attempts, a)
		tried = append(tried, model)
		if inv.observer != nil {
			inv.observer(a)
		}

		if err == nil {
			return InvocationResult{RawText: resp.Text, ModelUsed: model, Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			return InvocationResult{Attempts: attempts}, fmt.Errorf("%s invocation cancelled: %w", inv.role, ctx.Err())
		}
		if !IsRetryable(err) || i == len(inv.candidates)-1 {
			return InvocationResult{Attempts: attempts}, &ModelExhaustedError{Role: inv.role, Tried: tried, Last: err}
		}
		slog.Info("Invoker falling back to next model", "role", inv.role, "failed_model", model, "next_model", inv.candidates[i+1])
	}
	// Unreachable: the candidate list is never empty.
	return InvocationResult{Attempts: attempts}, &ModelExhaustedError{Role: inv.role, Tried: tried}
}
