package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/story"
)

// RevisionPreviewLength is the number of characters kept per revision entry.
const RevisionPreviewLength = 150

var ErrIllegalTransition = errors.New("illegal workflow transition")

// TransitionObserver is notified after each node completes.
type TransitionObserver func(from, to Node, s *State)

// Opts holds workflow configuration.
type Opts struct {
	Lengths       models.LengthTable
	MaxIterations int
	Observer      TransitionObserver
}

// Option defines a configuration option for the Workflow.
type Option func(*Opts)

// WithLengthTable sets the paragraph contract per length class.
func WithLengthTable(t models.LengthTable) Option {
	return func(o *Opts) { o.Lengths = t }
}

// WithMaxIterations sets the default refine budget.
func WithMaxIterations(n int) Option {
	return func(o *Opts) { o.MaxIterations = n }
}

// WithTransitionObserver registers a hook called on every transition.
func WithTransitionObserver(obs TransitionObserver) Option {
	return func(o *Opts) { o.Observer = obs }
}

// Workflow runs the reflection loop. It holds no per-run state and is safe for
// concurrent use.
type Workflow struct {
	gen    StoryGenerator
	critic StoryCritic
	cfg    Opts
}

// NewWorkflow creates a Workflow.
func NewWorkflow(gen StoryGenerator, critic StoryCritic, opts ...Option) *Workflow {
	cfg := Opts{Lengths: models.DefaultLengthTable(), MaxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	return &Workflow{gen: gen, critic: critic, cfg: cfg}
}

// MaxIterations returns the default refine budget.
func (w *Workflow) MaxIterations() int { return w.cfg.MaxIterations }

// Run drives a request to a FinalStory. Model failures and cancellation abort
// the run and return an error; no partial story is ever returned.
func (w *Workflow) Run(ctx context.Context, req Request) (*models.FinalStory, error) {
	st := w.newState(req)
	started := time.Now()
	slog.Info("Workflow started", "length", st.Length, "max_iterations", st.MaxIterations, "target_paragraphs", st.TargetParagraphs)

	node := NodeCreateOrRefine
	for node != NodeFinalize {
		if err := ctx.Err(); err != nil {
			slog.Warn("Workflow cancelled", "node", node.String(), "iteration", st.Iteration, "error", err)
			return nil, fmt.Errorf("story workflow cancelled at %s: %w", node, err)
		}
		next, err := w.step(ctx, node, st)
		if err != nil {
			slog.Error("Workflow node failed", "node", node.String(), "iteration", st.Iteration, "error", err)
			return nil, err
		}
		if !Allowed(node, next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, node, next)
		}
		slog.Debug("Workflow transition", "from", node.String(), "to", next.String(), "iteration", st.Iteration,
			"structure_ok", st.StructureOK, "approved", st.Approved, "format_attempts", st.FormatAttempts)
		if w.cfg.Observer != nil {
			w.cfg.Observer(node, next, st)
		}
		node = next
	}

	final := w.finalize(st)
	if !final.StructureOK {
		slog.Warn("Workflow finalized with paragraph mismatch", "paragraphs", final.ParagraphCount, "expected", final.ExpectedParagraphs)
	}
	slog.Info("Workflow finalized", "title", final.Title, "iterations", final.Iterations, "approved", final.Scores.Approved,
		"overall", final.Scores.Overall, "duration_ms", time.Since(started).Milliseconds())
	return final, nil
}

func (w *Workflow) newState(req Request) *State {
	length := req.Length
	if length == "" {
		length = models.DefaultLengthClass
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = w.cfg.MaxIterations
	}
	return &State{
		Prompt:           req.Prompt,
		Length:           length,
		StyleExamples:    req.StyleExamples,
		Iteration:        1,
		MaxIterations:    maxIter,
		TargetParagraphs: w.cfg.Lengths.Spec(length).Paragraphs,
	}
}

func (w *Workflow) step(ctx context.Context, node Node, st *State) (Node, error) {
	switch node {
	case NodeCreateOrRefine:
		return w.createOrRefine(ctx, st)
	case NodeCheckStructure:
		w.checkStructure(st)
		return NodeEvaluate, nil
	case NodeEvaluate:
		return w.evaluate(ctx, st)
	case NodeReformat:
		return w.reformat(ctx, st)
	case NodeRefine:
		st.Iteration++
		return NodeCreateOrRefine, nil
	default:
		return node, fmt.Errorf("%w: no handler for %s", ErrIllegalTransition, node)
	}
}

func (w *Workflow) createOrRefine(ctx context.Context, st *State) (Node, error) {
	var (
		draft models.StoryDraft
		stage models.RevisionStage
		err   error
	)
	if st.Iteration == 1 {
		stage = models.StageCreate
		draft, err = w.gen.Create(ctx, st.Prompt, st.Length, st.StyleExamples)
	} else {
		stage = models.StageRefine
		draft, err = w.gen.Refine(ctx, st.Draft, st.LastFeedback, st.Length)
	}
	if err != nil {
		return NodeCreateOrRefine, err
	}
	st.Draft = draft
	w.checkStructure(st)
	w.record(st, stage)
	return NodeCheckStructure, nil
}

func (w *Workflow) checkStructure(st *State) {
	st.ParagraphCount = story.CountParagraphs(st.Draft.Content)
	st.StructureOK = st.ParagraphCount == st.TargetParagraphs
}

func (w *Workflow) evaluate(ctx context.Context, st *State) (Node, error) {
	score, err := w.critic.Evaluate(ctx, st.Draft)
	if err != nil {
		return NodeEvaluate, err
	}
	score.Approved = story.Approves(score)
	st.LastScore = &score
	st.LastFeedback = score.Feedback
	st.Approved = score.Approved
	return Decide(st), nil
}

func (w *Workflow) reformat(ctx context.Context, st *State) (Node, error) {
	draft, err := w.gen.Reformat(ctx, st.Draft, st.TargetParagraphs, st.Length)
	if err != nil {
		return NodeReformat, err
	}
	st.Draft = draft
	st.FormatAttempts++
	w.checkStructure(st)
	w.record(st, models.StageReformat)
	return NodeEvaluate, nil
}

func (w *Workflow) record(st *State, stage models.RevisionStage) {
	st.RevisionHistory = append(st.RevisionHistory, models.RevisionEntry{
		Iteration:      st.Iteration,
		Stage:          stage,
		Title:          st.Draft.Title,
		ContentPreview: story.Preview(st.Draft.Content, RevisionPreviewLength),
		ParagraphCount: st.ParagraphCount,
	})
}

func (w *Workflow) finalize(st *State) *models.FinalStory {
	w.record(st, models.StageFinal)
	scores := models.DefaultQualityScore()
	if st.LastScore != nil {
		scores = *st.LastScore
	}
	history := make([]models.RevisionEntry, len(st.RevisionHistory))
	copy(history, st.RevisionHistory)
	return &models.FinalStory{
		Title:              st.Draft.Title,
		Content:            st.Draft.Content,
		Prompt:             st.Prompt,
		LengthClass:        st.Length,
		Iterations:         st.Iteration,
		Scores:             scores,
		ParagraphCount:     st.ParagraphCount,
		ExpectedParagraphs: st.TargetParagraphs,
		StructureOK:        st.StructureOK,
		FormatAttempts:     st.FormatAttempts,
		WordCount:          story.CountWords(st.Draft.Content),
		RevisionHistory:    history,
	}
}
