package story

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/prompts"
)

// Markers of a context-enriched modification request produced by the conversation router.
const (
	ModifyMarker   = "MODIFY_STORY:"
	PreviousMarker = "PREVIOUS_STORY:"
)

const (
	// DefaultMaxExamples caps the style examples embedded in a creation prompt.
	DefaultMaxExamples = 3
	// ExampleSnippetLength is the number of characters of each example shown to the model.
	ExampleSnippetLength = 200
)

// DefaultAgeBand is the audience the stories are written and judged for.
var DefaultAgeBand = prompts.AgeBand{MinAge: 5, MaxAge: 10}

// Opts holds configuration shared by the Generator and the Critic.
type Opts struct {
	Parser      Parser
	Lengths     models.LengthTable
	AgeBand     prompts.AgeBand
	MaxExamples int
}

// Option defines a configuration option for the Generator and the Critic.
type Option func(*Opts)

// WithParser replaces the labeled-line parser.
func WithParser(p Parser) Option {
	return func(o *Opts) { o.Parser = p }
}

// WithLengthTable sets the word ranges and paragraph counts per length class.
func WithLengthTable(t models.LengthTable) Option {
	return func(o *Opts) { o.Lengths = t }
}

// WithAgeBand sets the audience age range.
func WithAgeBand(b prompts.AgeBand) Option {
	return func(o *Opts) { o.AgeBand = b }
}

// WithMaxExamples caps the number of style examples per creation prompt.
func WithMaxExamples(n int) Option {
	return func(o *Opts) { o.MaxExamples = n }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		Parser:      LabeledParser{},
		Lengths:     models.DefaultLengthTable(),
		AgeBand:     DefaultAgeBand,
		MaxExamples: DefaultMaxExamples,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Generator writes and revises stories with the storyteller role.
type Generator struct {
	llm     genai.Caller
	prompts *prompts.Set
	cfg     Opts
}

// NewGenerator creates a Generator.
func NewGenerator(llm genai.Caller, set *prompts.Set, opts ...Option) *Generator {
	return &Generator{llm: llm, prompts: set, cfg: buildOpts(opts)}
}

// Create writes a new story for the theme. A theme carrying a modification
// request rewrites the embedded previous story instead.
func (g *Generator) Create(ctx context.Context, theme string, length models.LengthClass, examples []models.StoryDraft) (models.StoryDraft, error) {
	spec := g.cfg.Lengths.Spec(length)

	var (
		user string
		err  error
	)
	if request, previous, ok := SplitModification(theme); ok {
		user, err = g.prompts.Render(prompts.StoryModification, prompts.ModificationData{
			AgeBand:       g.cfg.AgeBand,
			Request:       request,
			PreviousStory: previous,
			WordRange:     spec.WordRange(),
			Paragraphs:    spec.Paragraphs,
		})
	} else {
		user, err = g.prompts.Render(prompts.StoryCreation, prompts.CreationData{
			AgeBand:    g.cfg.AgeBand,
			Theme:      theme,
			WordRange:  spec.WordRange(),
			Paragraphs: spec.Paragraphs,
			Structure:  ParagraphRoles(spec.Paragraphs),
			Examples:   g.examples(examples),
		})
	}
	if err != nil {
		return models.StoryDraft{}, err
	}
	system, err := g.prompts.Render(prompts.StorytellerSystem, g.cfg.AgeBand)
	if err != nil {
		return models.StoryDraft{}, err
	}
	return g.run(ctx, "Create", system, user)
}

// Refine revises a draft to address the feedback while keeping its premise.
func (g *Generator) Refine(ctx context.Context, draft models.StoryDraft, feedback string, length models.LengthClass) (models.StoryDraft, error) {
	spec := g.cfg.Lengths.Spec(length)
	return g.revise(ctx, "Refine", draft, feedback, spec.Paragraphs, spec.WordRange())
}

// Reformat asks for a paragraph-boundary-only rewrite to the target count.
func (g *Generator) Reformat(ctx context.Context, draft models.StoryDraft, target int, length models.LengthClass) (models.StoryDraft, error) {
	spec := g.cfg.Lengths.Spec(length)
	return g.revise(ctx, "Reformat", draft, ReformatFeedback(target), target, spec.WordRange())
}

func (g *Generator) revise(ctx context.Context, op string, draft models.StoryDraft, feedback string, paragraphs int, wordRange string) (models.StoryDraft, error) {
	user, err := g.prompts.Render(prompts.StoryRefinement, prompts.RefinementData{
		Title:      draft.Title,
		Content:    draft.Content,
		Feedback:   feedback,
		WordRange:  wordRange,
		Paragraphs: paragraphs,
		Structure:  ParagraphRoles(paragraphs),
	})
	if err != nil {
		return models.StoryDraft{}, err
	}
	system, err := g.prompts.Render(prompts.RefinementSystem, g.cfg.AgeBand)
	if err != nil {
		return models.StoryDraft{}, err
	}
	return g.run(ctx, op, system, user)
}

func (g *Generator) run(ctx context.Context, op, system, user string) (models.StoryDraft, error) {
	res, err := g.llm.Invoke(ctx, []genai.Message{genai.SystemMessage(system), genai.UserMessage(user)})
	if err != nil {
		slog.Error("Generator "+op+" failed", "error", err)
		return models.StoryDraft{}, fmt.Errorf("failed to %s story: %w", strings.ToLower(op), err)
	}
	draft, ok := g.cfg.Parser.ParseDraft(res.RawText)
	if !ok {
		slog.Warn("Generator "+op+" response missing TITLE/STORY sections, using defaults", "model", res.ModelUsed)
	}
	slog.Debug("Generator "+op+" succeeded", "model", res.ModelUsed, "title", draft.Title,
		"paragraphs", CountParagraphs(draft.Content), "words", CountWords(draft.Content))
	return draft, nil
}

func (g *Generator) examples(drafts []models.StoryDraft) []prompts.Example {
	var out []prompts.Example
	for _, d := range drafts {
		if len(out) >= g.cfg.MaxExamples {
			break
		}
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		out = append(out, prompts.Example{
			Title:   d.Title,
			Snippet: Preview(strings.Join(strings.Fields(d.Content), " "), ExampleSnippetLength),
		})
	}
	return out
}

// SplitModification splits a "MODIFY_STORY: ... PREVIOUS_STORY: ..." theme into
// the request and the previous story.
func SplitModification(theme string) (request, previous string, ok bool) {
	mi := strings.Index(theme, ModifyMarker)
	pi := strings.Index(theme, PreviousMarker)
	if mi < 0 || pi < 0 || pi < mi {
		return "", "", false
	}
	request = strings.TrimSpace(theme[mi+len(ModifyMarker) : pi])
	if nl := strings.Index(request, "\nLENGTH:"); nl >= 0 {
		request = strings.TrimSpace(request[:nl])
	}
	previous = strings.TrimSpace(theme[pi+len(PreviousMarker):])
	if request == "" || previous == "" {
		return "", "", false
	}
	return request, previous, true
}
