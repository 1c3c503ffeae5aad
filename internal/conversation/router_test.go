package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/prompts"
	"github.com/BTreeMap/SleepyStorybook/internal/story"
)

// classifierFake answers each classifier prompt with a scripted reply chosen
// by a phrase unique to that template.
type classifierFake struct {
	mu       sync.Mutex
	safety   string
	inquiry  string
	detect   string
	context  string
	reply    string
	failAll  bool
	prompts  []string
	analyzed bool
}

func (f *classifierFake) Invoke(ctx context.Context, messages []genai.Message) (genai.InvocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := messages[len(messages)-1].Content
	f.prompts = append(f.prompts, user)
	if f.failAll {
		return genai.InvocationResult{}, &genai.ModelExhaustedError{Role: genai.RoleConversation, Last: errors.New("rate limit")}
	}
	var text string
	switch {
	case strings.Contains(user, "Answer APPROPRIATE or INAPPROPRIATE"):
		text = orDefault(f.safety, "APPROPRIATE")
	case strings.Contains(user, `Answer with only "yes" or "no"`):
		text = orDefault(f.inquiry, "no")
	case strings.Contains(user, "Answer YES or NO:"):
		text = orDefault(f.detect, "NO")
	case strings.Contains(user, "ANALYZE CONTEXT"):
		f.analyzed = true
		text = f.context
	default:
		text = f.reply
	}
	return genai.InvocationResult{RawText: text, ModelUsed: "fake"}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func newTestRouter(llm genai.Caller) *Router {
	return NewRouter(llm, prompts.Default())
}

func TestRouteRemembersNameWithFailingModels(t *testing.T) {
	r := newTestRouter(&classifierFake{failAll: true})
	sc := models.NewSessionContext("s1")
	ctx := context.Background()

	d, err := r.Route(ctx, "My name is Mia", nil, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.DisplayName() != "Mia" {
		t.Fatalf("expected name Mia, got %q", sc.DisplayName())
	}
	if d.Kind != KindConversation || d.ShouldGenerateStory {
		t.Errorf("expected conversation decision, got %+v", d)
	}
	if !strings.Contains(d.Response, "Mia") {
		t.Errorf("expected fallback reply to greet Mia, got %q", d.Response)
	}

	d, err = r.Route(ctx, "what's my name?", nil, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindSelfInquiry {
		t.Fatalf("expected self inquiry, got %s", d.Kind)
	}
	if !strings.Contains(d.Response, "Mia") {
		t.Errorf("expected response to contain Mia, got %q", d.Response)
	}
}

func TestRouteSelfInquiryWithScriptedModel(t *testing.T) {
	llm := &classifierFake{inquiry: "yes"}
	r := newTestRouter(llm)
	sc := models.NewSessionContext("s1")
	sc.SetName("Mia")
	sc.SetAge(7)

	d, err := r.Route(context.Background(), "do you remember who I am?", nil, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindSelfInquiry || !strings.Contains(d.Response, "Mia") || !strings.Contains(d.Response, "7 years old") {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestRouteSelfInquiryUnknownName(t *testing.T) {
	r := newTestRouter(&classifierFake{inquiry: "Yes."})
	d, err := r.Route(context.Background(), "what is my name", nil, models.NewSessionContext("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(d.Response, "told me your name") {
		t.Errorf("expected ask-for-name response, got %q", d.Response)
	}
}

func TestRouteInappropriate(t *testing.T) {
	r := newTestRouter(&classifierFake{safety: "INAPPROPRIATE"})
	sc := models.NewSessionContext("s1")
	sc.SetName("Leo")
	d, err := r.Route(context.Background(), "tell me something gory", nil, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindInappropriate || d.ShouldGenerateStory {
		t.Fatalf("expected inappropriate, got %+v", d)
	}
	if !strings.HasPrefix(d.Response, "Oh Leo, I'm sorry") {
		t.Errorf("unexpected redirect %q", d.Response)
	}
}

func TestRouteSafetyFailsOpen(t *testing.T) {
	r := newTestRouter(&classifierFake{failAll: true})
	d, err := r.Route(context.Background(), "tell me a story about a dragon", nil, models.NewSessionContext("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindStoryRequest || !d.ShouldGenerateStory {
		t.Fatalf("expected keyword fallback to detect a story request, got %+v", d)
	}
	if d.StoryPrompt != "tell me a story about a dragon" {
		t.Errorf("expected raw message as prompt, got %q", d.StoryPrompt)
	}
}

func TestRouteStoryRequestWithoutHistory(t *testing.T) {
	llm := &classifierFake{detect: "YES"}
	r := newTestRouter(llm)
	sc := models.NewSessionContext("s1")
	sc.SetName("Ava")
	d, err := r.Route(context.Background(), "a bunny who learns to share", nil, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.ShouldGenerateStory || d.StoryPrompt != "a bunny who learns to share" {
		t.Errorf("unexpected decision %+v", d)
	}
	if d.Response != "Great idea, Ava, let me create that story for you! ✨" {
		t.Errorf("unexpected response %q", d.Response)
	}
	if llm.analyzed {
		t.Error("context analysis should be skipped without history")
	}
}

func TestRouteStoryModificationFromContext(t *testing.T) {
	previous := "Once upon a time a fox found a lantern.\n\nThe fox shared its light."
	history := []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "tell me a story about a fox"},
		{Role: models.ChatRoleAssistant, Content: "Here it is! " + StoryContentMarker + " " + previous},
	}

	tests := []struct {
		name    string
		context string
		want    string
	}{
		{
			name:    "formatted modification",
			context: "MODIFY_STORY: add an owl\n\nPREVIOUS_STORY:\n" + previous,
			want:    "MODIFY_STORY: add an owl\n\nPREVIOUS_STORY:\n" + previous,
		},
		{
			name:    "explanation falls back to history",
			context: "Since the user wants an owl, the story should be modified.",
			want:    story.ModifyMarker + " add an owl\n\n" + story.PreviousMarker + "\n" + previous,
		},
		{
			name:    "plain prompt",
			context: "A fox and an owl share a lantern",
			want:    "A fox and an owl share a lantern",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&classifierFake{detect: "YES", context: tt.context})
			d, err := r.Route(context.Background(), "add an owl", history, models.NewSessionContext("s1"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.StoryPrompt != tt.want {
				t.Errorf("expected prompt %q, got %q", tt.want, d.StoryPrompt)
			}
			if tt.name != "plain prompt" {
				req, prev, ok := story.SplitModification(d.StoryPrompt)
				if !ok || req != "add an owl" || prev != previous {
					t.Errorf("prompt did not split into request and story: %q %q %v", req, prev, ok)
				}
			}
		})
	}
}

func TestRouteConversationReply(t *testing.T) {
	llm := &classifierFake{reply: "Hello there, friend!"}
	r := newTestRouter(llm)
	d, err := r.Route(context.Background(), "hi there", nil, models.NewSessionContext("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != KindConversation || d.Response != "Hello there, friend!" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestRouteConversationFallbackWithoutName(t *testing.T) {
	r := newTestRouter(&classifierFake{failAll: true})
	d, err := r.Route(context.Background(), "hello", nil, models.NewSessionContext("s1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Response != fallbackReply {
		t.Errorf("expected generic fallback, got %q", d.Response)
	}
}

func TestRouteCancelled(t *testing.T) {
	r := newTestRouter(&classifierFake{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Route(ctx, "hello", nil, models.NewSessionContext("s1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRouteDoesNotLearnThirdPartyNames(t *testing.T) {
	r := newTestRouter(&classifierFake{detect: "YES"})
	for _, msg := range []string{
		"tell me a story about Justin",
		"Tell me a story where I am Batman",
		"Can you make a story where I'm Elsa?",
		"Pretend I'm Superman and tell me a tale",
		"I am 5 feet tall",
	} {
		sc := models.NewSessionContext("s1")
		sc.SetName("Mia")
		if _, err := r.Route(context.Background(), msg, nil, sc); err != nil {
			t.Fatalf("%q: unexpected error: %v", msg, err)
		}
		if sc.DisplayName() != "Mia" {
			t.Errorf("%q: expected name to stay Mia, got %q", msg, sc.DisplayName())
		}
		if _, ok := sc.KnownAge(); ok {
			t.Errorf("%q: expected no age to be learned", msg)
		}
	}
}

func TestRouteWithNilSession(t *testing.T) {
	r := newTestRouter(&classifierFake{failAll: true})
	d, err := r.Route(context.Background(), "My name is Mia and I'm 6", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Response == "" {
		t.Error("expected a reply for a nil session")
	}
}

func TestIsYes(t *testing.T) {
	for answer, want := range map[string]bool{
		"yes": true, "YES": true, " Yes.": true, `"yes"`: true, "**YES**": true,
		"no": false, "NO": false, "": false, "maybe yes": false,
	} {
		if got := isYes(answer); got != want {
			t.Errorf("isYes(%q) = %v, want %v", answer, got, want)
		}
	}
}
