package story

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/prompts"
)

// Critic scores drafts with the judge role.
type Critic struct {
	llm     genai.Caller
	prompts *prompts.Set
	cfg     Opts
}

// NewCritic creates a Critic.
func NewCritic(llm genai.Caller, set *prompts.Set, opts ...Option) *Critic {
	return &Critic{llm: llm, prompts: set, cfg: buildOpts(opts)}
}

// Evaluate scores a draft. Malformed judge output never fails; unparsed fields
// take their defaults. Approved is set by the approval policy.
func (c *Critic) Evaluate(ctx context.Context, draft models.StoryDraft) (models.QualityScore, error) {
	user, err := c.prompts.Render(prompts.Evaluation, prompts.EvaluationData{
		AgeBand: c.cfg.AgeBand,
		Title:   draft.Title,
		Content: draft.Content,
	})
	if err != nil {
		return models.QualityScore{}, err
	}
	system, err := c.prompts.Render(prompts.JudgeSystem, c.cfg.AgeBand)
	if err != nil {
		return models.QualityScore{}, err
	}

	res, err := c.llm.Invoke(ctx, []genai.Message{genai.SystemMessage(system), genai.UserMessage(user)})
	if err != nil {
		slog.Error("Critic Evaluate failed", "error", err, "title", draft.Title)
		return models.QualityScore{}, fmt.Errorf("failed to evaluate story: %w", err)
	}

	score := c.cfg.Parser.ParseScore(res.RawText)
	score.Approved = Approves(score)
	slog.Debug("Critic Evaluate succeeded", "model", res.ModelUsed, "title", draft.Title,
		"clarity", score.Clarity, "moral", score.MoralValue, "age", score.AgeAppropriateness,
		"overall", score.Overall, "approved", score.Approved, "critic_verdict", score.Verdict)
	return score, nil
}
