package models

import (
	"fmt"
	"strings"
	"time"
)

// LengthClass selects the target word count and paragraph structure of a story.
type LengthClass string

const (
	LengthShort  LengthClass = "short"
	LengthMedium LengthClass = "medium"
	LengthLong   LengthClass = "long"
)

// DefaultLengthClass is used when a request does not name a length.
const DefaultLengthClass = LengthMedium

// ParseLengthClass converts user input into a LengthClass. Empty input yields the default.
func ParseLengthClass(s string) (LengthClass, error) {
	switch LengthClass(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultLengthClass, nil
	case LengthShort:
		return LengthShort, nil
	case LengthMedium:
		return LengthMedium, nil
	case LengthLong:
		return LengthLong, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLengthClass, s)
	}
}

// LengthSpec is the structure contract for one length class.
type LengthSpec struct {
	MinWords   int `json:"min_words" yaml:"min_words"`
	MaxWords   int `json:"max_words" yaml:"max_words"`
	Paragraphs int `json:"paragraphs" yaml:"paragraphs"`
}

// WordRange renders the word range as "min-max".
func (s LengthSpec) WordRange() string {
	return fmt.Sprintf("%d-%d", s.MinWords, s.MaxWords)
}

// LengthTable maps each length class to its structure contract.
type LengthTable map[LengthClass]LengthSpec

// DefaultLengthTable returns the stock word ranges and paragraph counts.
func DefaultLengthTable() LengthTable {
	return LengthTable{
		LengthShort:  {MinWords: 150, MaxWords: 220, Paragraphs: 2},
		LengthMedium: {MinWords: 250, MaxWords: 320, Paragraphs: 3},
		LengthLong:   {MinWords: 350, MaxWords: 420, Paragraphs: 3},
	}
}

// Spec returns the contract for a class, falling back to the medium entry and
// then the built-in defaults when the table is incomplete.
func (t LengthTable) Spec(c LengthClass) LengthSpec {
	if s, ok := t[c]; ok && s.Paragraphs > 0 {
		return s
	}
	if s, ok := t[DefaultLengthClass]; ok && s.Paragraphs > 0 {
		return s
	}
	return DefaultLengthTable()[DefaultLengthClass]
}

// StoryDraft is a titled story produced by the generator.
type StoryDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// QualityScore is the critic's assessment of a draft.
type QualityScore struct {
	Clarity            int    `json:"clarity"`
	MoralValue         int    `json:"moral_value"`
	AgeAppropriateness int    `json:"age_appropriateness"`
	Overall            int    `json:"overall"`
	Approved           bool   `json:"approved"`
	Verdict            bool   `json:"critic_verdict"` // the critic's own APPROVED line
	Feedback           string `json:"feedback"`
}

// Score defaults applied when a field cannot be parsed from critic output.
const (
	DefaultScoreValue = 7
	DefaultFeedback   = "Story evaluated."
	MinScoreValue     = 1
	MaxScoreValue     = 10
)

// DefaultQualityScore returns the score used when nothing could be parsed.
func DefaultQualityScore() QualityScore {
	return QualityScore{
		Clarity:            DefaultScoreValue,
		MoralValue:         DefaultScoreValue,
		AgeAppropriateness: DefaultScoreValue,
		Overall:            DefaultScoreValue,
		Feedback:           DefaultFeedback,
	}
}

// RevisionStage names the step that produced a revision entry.
type RevisionStage string

const (
	StageCreate   RevisionStage = "create"
	StageRefine   RevisionStage = "refine"
	StageReformat RevisionStage = "reformat"
	StageFinal    RevisionStage = "final"
)

// RevisionEntry records one draft in the revision history.
type RevisionEntry struct {
	Iteration      int           `json:"iteration"`
	Stage          RevisionStage `json:"stage"`
	Title          string        `json:"title"`
	ContentPreview string        `json:"content_preview"`
	ParagraphCount int           `json:"paragraph_count"`
}

// FinalStory is the terminal artifact of the reflection workflow.
type FinalStory struct {
	Title              string          `json:"title"`
	Content            string          `json:"content"`
	Prompt             string          `json:"prompt"`
	LengthClass        LengthClass     `json:"length_type"`
	Iterations         int             `json:"iterations"`
	Scores             QualityScore    `json:"scores"`
	ParagraphCount     int             `json:"paragraph_count"`
	ExpectedParagraphs int             `json:"expected_paragraphs"`
	StructureOK        bool            `json:"structure_ok"`
	FormatAttempts     int             `json:"format_attempts"`
	WordCount          int             `json:"word_count"`
	RevisionHistory    []RevisionEntry `json:"revision_history"`
}

// StoredStory is a persisted FinalStory.
type StoredStory struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	FinalStory
}

// Draft returns the title and content as a StoryDraft, for use as a style example.
func (s StoredStory) Draft() StoryDraft {
	return StoryDraft{Title: s.Title, Content: s.Content}
}
