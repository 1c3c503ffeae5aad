// Package conversation routes chat messages between small talk and story
// generation, and keeps what each child has told us about themselves.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/prompts"
	"github.com/BTreeMap/SleepyStorybook/internal/story"
)

// Kind classifies a routed message.
type Kind string

const (
	KindInappropriate Kind = "inappropriate"
	KindSelfInquiry   Kind = "self_inquiry"
	KindStoryRequest  Kind = "story_request"
	KindConversation  Kind = "conversation"
)

// Decision is the outcome of routing one message.
type Decision struct {
	Kind                Kind   `json:"type"`
	Response            string `json:"response"`
	ShouldGenerateStory bool   `json:"should_generate_story"`
	StoryPrompt         string `json:"story_prompt,omitempty"`
}

// StoryContentMarker prefixes assistant history entries that carry a full story.
const StoryContentMarker = "STORY_CONTENT:"

const (
	// DefaultHistoryWindow is the number of recent messages given to the model.
	DefaultHistoryWindow = 4
	fallbackReply        = "I'm here to help! Would you like me to tell you a story? ✨"
)

// DefaultAgeBand is the audience the companion talks to.
var DefaultAgeBand = prompts.AgeBand{MinAge: 5, MaxAge: 14}

var (
	selfInquiryPhrases = []string{"what's my name", "what is my name", "whats my name", "do you know my name",
		"do you remember me", "remember my name", "who am i", "how old am i", "what's my age", "what is my age"}
	storyKeywords = []string{"story", "tale"}
	// Answers from the context analyzer that explain instead of formatting.
	explanationPrefixes = []string{"since ", "this is", "the user", "based on", "i ", "here is", "here's", "it seems"}
)

// Opts holds router configuration.
type Opts struct {
	AgeBand         prompts.AgeBand
	HistoryWindow   int
	MaxPromptLength int
}

// Option defines a configuration option for the Router.
type Option func(*Opts)

// WithAgeBand sets the audience age range.
func WithAgeBand(b prompts.AgeBand) Option {
	return func(o *Opts) { o.AgeBand = b }
}

// WithHistoryWindow sets how many recent messages are analysed.
func WithHistoryWindow(n int) Option {
	return func(o *Opts) { o.HistoryWindow = n }
}

// Router classifies messages with the conversation role.
type Router struct {
	llm     genai.Caller
	prompts *prompts.Set
	cfg     Opts
}

// NewRouter creates a Router.
func NewRouter(llm genai.Caller, set *prompts.Set, opts ...Option) *Router {
	cfg := Opts{AgeBand: DefaultAgeBand, HistoryWindow: DefaultHistoryWindow, MaxPromptLength: models.MaxPromptLength}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HistoryWindow < 1 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Router{llm: llm, prompts: set, cfg: cfg}
}

// Route classifies message and produces a reply. Identity facts are written to
// session; a nil session routes against a throwaway context. Classifier failures degrade to fallbacks; the only error returned is
// cancellation of ctx.
func (r *Router) Route(ctx context.Context, message string, history []models.ChatMessage, session *models.SessionContext) (Decision, error) {
	if session == nil {
		session = models.NewSessionContext("")
	}
	if id, ok := ExtractIdentity(message); ok && id.Apply(session) {
		slog.Info("Router learned identity", "session_id", session.SessionID, "name_set", id.Name != "", "age_set", id.Age != 0)
	}

	if !r.isAppropriate(ctx, message) {
		return r.finish(ctx, Decision{Kind: KindInappropriate, Response: inappropriateReply(session)})
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if r.isSelfInquiry(ctx, message) {
		return r.finish(ctx, Decision{Kind: KindSelfInquiry, Response: selfInquiryReply(session)})
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if r.isStoryRequest(ctx, message) {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		prompt := r.storyPrompt(ctx, message, history)
		return r.finish(ctx, Decision{
			Kind:                KindStoryRequest,
			Response:            storyReply(session),
			ShouldGenerateStory: true,
			StoryPrompt:         prompt,
		})
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	return r.finish(ctx, Decision{Kind: KindConversation, Response: r.reply(ctx, message, history, session)})
}

func (r *Router) finish(ctx context.Context, d Decision) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	slog.Debug("Router decision", "kind", d.Kind, "should_generate_story", d.ShouldGenerateStory)
	return d, nil
}

func (r *Router) ask(ctx context.Context, step, key string, data any) (string, error) {
	user, err := r.prompts.Render(key, data)
	if err != nil {
		return "", err
	}
	res, err := r.llm.Invoke(ctx, []genai.Message{genai.UserMessage(user)})
	if err != nil {
		slog.Warn("Router "+step+" classifier failed, using fallback", "error", err)
		return "", err
	}
	return strings.TrimSpace(res.RawText), nil
}

// isAppropriate fails open: any error or ambiguous answer counts as appropriate.
func (r *Router) isAppropriate(ctx context.Context, message string) bool {
	answer, err := r.ask(ctx, "safety", prompts.SafetyCheck, prompts.MessageData{AgeBand: r.cfg.AgeBand, Message: message})
	if err != nil {
		return true
	}
	return !strings.Contains(strings.ToUpper(answer), "INAPPROPRIATE")
}

func (r *Router) isSelfInquiry(ctx context.Context, message string) bool {
	answer, err := r.ask(ctx, "self-inquiry", prompts.SelfInquiry, prompts.MessageData{AgeBand: r.cfg.AgeBand, Message: message})
	if err != nil {
		return containsAny(strings.ToLower(message), selfInquiryPhrases)
	}
	return isYes(answer)
}

func (r *Router) isStoryRequest(ctx context.Context, message string) bool {
	answer, err := r.ask(ctx, "story-detection", prompts.StoryDetection, prompts.MessageData{AgeBand: r.cfg.AgeBand, Message: message})
	if err != nil {
		return containsAny(strings.ToLower(message), storyKeywords)
	}
	return isYes(answer)
}

// storyPrompt enriches the request with recent conversation. It falls back to
// the raw message whenever analysis is unavailable.
func (r *Router) storyPrompt(ctx context.Context, message string, history []models.ChatMessage) string {
	recent := lastN(history, r.cfg.HistoryWindow)
	if len(recent) == 0 {
		return models.Truncate(message, r.cfg.MaxPromptLength)
	}
	answer, err := r.ask(ctx, "context-analysis", prompts.ContextAnalysis, prompts.ContextData{
		Conversation: formatHistory(recent),
		Request:      message,
	})
	if err != nil || answer == "" {
		return models.Truncate(message, r.cfg.MaxPromptLength)
	}

	previous := lastStoryContent(history)
	if strings.Contains(answer, story.ModifyMarker) {
		if _, _, ok := story.SplitModification(answer); ok {
			return answer
		}
		if previous != "" {
			return buildModification(message, previous)
		}
		return models.Truncate(message, r.cfg.MaxPromptLength)
	}
	if looksLikeExplanation(answer) {
		if previous != "" {
			return buildModification(message, previous)
		}
		return models.Truncate(message, r.cfg.MaxPromptLength)
	}
	return models.Truncate(answer, r.cfg.MaxPromptLength)
}

func (r *Router) reply(ctx context.Context, message string, history []models.ChatMessage, session *models.SessionContext) string {
	system, err := r.prompts.Render(prompts.ConversationSystem, prompts.ConversationData{
		AgeBand: r.cfg.AgeBand,
		Context: userContext(session),
		History: formatHistory(lastN(history, r.cfg.HistoryWindow)),
	})
	if err != nil {
		slog.Error("Router conversation prompt failed", "error", err)
		return fallbackConversation(session)
	}
	res, err := r.llm.Invoke(ctx, []genai.Message{genai.SystemMessage(system), genai.UserMessage(message)})
	if err != nil || strings.TrimSpace(res.RawText) == "" {
		slog.Warn("Router conversation reply failed, using fallback", "error", err)
		return fallbackConversation(session)
	}
	return strings.TrimSpace(res.RawText)
}

func inappropriateReply(sc *models.SessionContext) string {
	return fmt.Sprintf("Oh %sI'm sorry, but I can only create stories that are fun and safe for children. "+
		"How about we try a different adventure? Maybe a story about friendly animals, magical places, or exciting journeys! 🌟",
		namePrefix(sc))
}

func selfInquiryReply(sc *models.SessionContext) string {
	name := sc.DisplayName()
	age, hasAge := sc.KnownAge()
	switch {
	case name != "" && hasAge:
		return fmt.Sprintf("Of course I remember you, %s! 😊 You're %d years old. What kind of story would you like today?", name, age)
	case name != "":
		return fmt.Sprintf("Of course I remember you, %s! 😊 What kind of story would you like today?", name)
	case hasAge:
		return fmt.Sprintf("I know you're %d years old, but I don't think you've told me your name yet! What should I call you?", age)
	default:
		return "I don't think you've told me your name yet! What should I call you?"
	}
}

func storyReply(sc *models.SessionContext) string {
	return fmt.Sprintf("Great idea, %slet me create that story for you! ✨", namePrefix(sc))
}

func fallbackConversation(sc *models.SessionContext) string {
	if name := sc.DisplayName(); name != "" {
		return fmt.Sprintf("Nice to talk with you, %s! Would you like me to tell you a story? ✨", name)
	}
	return fallbackReply
}

func namePrefix(sc *models.SessionContext) string {
	if name := sc.DisplayName(); name != "" {
		return name + ", "
	}
	return ""
}

func userContext(sc *models.SessionContext) string {
	var parts []string
	if name := sc.DisplayName(); name != "" {
		parts = append(parts, "The child's name is "+name+".")
	}
	if age, ok := sc.KnownAge(); ok {
		parts = append(parts, fmt.Sprintf("They are %d years old.", age))
	}
	return strings.Join(parts, " ")
}

func lastN(history []models.ChatMessage, n int) []models.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func formatHistory(history []models.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func lastStoryContent(history []models.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if idx := strings.Index(history[i].Content, StoryContentMarker); idx >= 0 {
			return strings.TrimSpace(history[i].Content[idx+len(StoryContentMarker):])
		}
	}
	return ""
}

func buildModification(request, previous string) string {
	return fmt.Sprintf("%s %s\n\n%s\n%s", story.ModifyMarker, request, story.PreviousMarker, previous)
}

func looksLikeExplanation(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range explanationPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isYes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.TrimLeft(a, "\"'*` ")
	return strings.HasPrefix(a, "yes")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
