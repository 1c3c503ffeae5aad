// Package flow drives the reflection workflow: the generator and critic roles
// iterate through an explicit state machine until a story is approved or the
// iteration budget is spent.
package flow

import (
	"context"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// StoryGenerator writes, revises and restructures drafts.
type StoryGenerator interface {
	Create(ctx context.Context, theme string, length models.LengthClass, examples []models.StoryDraft) (models.StoryDraft, error)
	Refine(ctx context.Context, draft models.StoryDraft, feedback string, length models.LengthClass) (models.StoryDraft, error)
	Reformat(ctx context.Context, draft models.StoryDraft, target int, length models.LengthClass) (models.StoryDraft, error)
}

// StoryCritic scores drafts.
type StoryCritic interface {
	Evaluate(ctx context.Context, draft models.StoryDraft) (models.QualityScore, error)
}

// State is the aggregate threaded through one workflow run. It is owned by the
// run and never shared.
type State struct {
	Prompt           string
	Length           models.LengthClass
	StyleExamples    []models.StoryDraft
	Draft            models.StoryDraft
	Iteration        int
	MaxIterations    int
	LastFeedback     string
	LastScore        *models.QualityScore
	Approved         bool
	StructureOK      bool
	ParagraphCount   int
	TargetParagraphs int
	FormatAttempts   int
	RevisionHistory  []models.RevisionEntry
}

// Request starts a workflow run.
type Request struct {
	Prompt        string
	Length        models.LengthClass
	MaxIterations int // zero means the workflow default
	StyleExamples []models.StoryDraft
}
