package story

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// DefaultTitle is used when a response carries no usable TITLE/STORY sections.
const DefaultTitle = "A Bedtime Story"

// Parser turns raw model output into structured values. Parsing never fails;
// missing fields take documented defaults.
type Parser interface {
	// ParseDraft extracts a draft. ok is false when the labeled sections were
	// missing and the defaults were applied.
	ParseDraft(raw string) (draft models.StoryDraft, ok bool)
	// ParseScore extracts a score. Approved is left false; approval is a
	// policy decision made by the caller.
	ParseScore(raw string) models.QualityScore
}

// LabeledParser implements Parser for the "LABEL: value" line convention.
type LabeledParser struct{}

var (
	titleLabel    = regexp.MustCompile(`(?im)^[ \t*#>_-]*TITLE[ \t*_]*:[ \t*_]*(.+?)[ \t*_]*$`)
	storyLabel    = regexp.MustCompile(`(?ims)^[ \t*#>_-]*STORY[ \t*_]*:[ \t*_]*(.+)$`)
	clarityLabel  = scoreLabel(`CLARITY`)
	moralLabel    = scoreLabel(`MORAL(?:[ _]VALUE)?`)
	ageLabel      = scoreLabel(`AGE[ _]APPROPRIATE(?:NESS)?`)
	overallLabel  = scoreLabel(`OVERALL(?:[ _]SCORE)?`)
	approvedLabel = regexp.MustCompile(`(?im)^[ \t*#>-]*APPROVED[ \t*]*:[ \t*]*(YES|NO|TRUE|FALSE)\b`)
	feedbackLabel = regexp.MustCompile(`(?ims)^[ \t*#>-]*FEEDBACK[ \t*]*:[ \t*]*(.*)$`)
)

func scoreLabel(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t*#>-]*` + name + `[ \t*]*:[ \t*]*(\d+)`)
}

// ParseDraft implements Parser.
func (LabeledParser) ParseDraft(raw string) (models.StoryDraft, bool) {
	text := strings.TrimSpace(raw)
	tm := titleLabel.FindStringSubmatch(text)
	sm := storyLabel.FindStringSubmatch(text)
	if tm == nil || sm == nil {
		return models.StoryDraft{Title: DefaultTitle, Content: text}, false
	}
	title := strings.Trim(strings.TrimSpace(tm[1]), `"'*`)
	content := strings.TrimSpace(sm[1])
	if title == "" {
		title = DefaultTitle
	}
	if content == "" {
		return models.StoryDraft{Title: title, Content: text}, false
	}
	return models.StoryDraft{Title: title, Content: content}, true
}

// ParseScore implements Parser.
func (LabeledParser) ParseScore(raw string) models.QualityScore {
	score := models.DefaultQualityScore()
	score.Clarity = extractScore(clarityLabel, raw)
	score.MoralValue = extractScore(moralLabel, raw)
	score.AgeAppropriateness = extractScore(ageLabel, raw)
	score.Overall = extractScore(overallLabel, raw)
	if m := approvedLabel.FindStringSubmatch(raw); m != nil {
		v := strings.ToUpper(m[1])
		score.Verdict = v == "YES" || v == "TRUE"
	}
	if m := feedbackLabel.FindStringSubmatch(raw); m != nil {
		if fb := strings.TrimSpace(m[1]); fb != "" {
			score.Feedback = fb
		}
	}
	return score
}

func extractScore(re *regexp.Regexp, raw string) int {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return models.DefaultScoreValue
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return models.DefaultScoreValue
	}
	return clamp(n)
}

func clamp(n int) int {
	if n < models.MinScoreValue {
		return models.MinScoreValue
	}
	if n > models.MaxScoreValue {
		return models.MaxScoreValue
	}
	return n
}
