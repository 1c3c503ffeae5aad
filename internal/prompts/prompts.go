// Package prompts loads the prompt templates used by the storyteller, judge and
// conversation roles. Defaults are embedded; a YAML file can override any key.
package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template keys.
const (
	StorytellerSystem  = "storyteller_system"
	RefinementSystem   = "refinement_system"
	StoryCreation      = "story_creation"
	StoryModification  = "story_modification"
	StoryRefinement    = "story_refinement"
	JudgeSystem        = "judge_system"
	Evaluation         = "evaluation"
	ConversationSystem = "conversation_system"
	SafetyCheck        = "safety_check"
	SelfInquiry        = "self_inquiry"
	StoryDetection     = "story_detection"
	ContextAnalysis    = "context_analysis"
)

// RequiredKeys lists every template the service renders.
var RequiredKeys = []string{
	StorytellerSystem, RefinementSystem, StoryCreation, StoryModification,
	StoryRefinement, JudgeSystem, Evaluation, ConversationSystem,
	SafetyCheck, SelfInquiry, StoryDetection, ContextAnalysis,
}

var (
	ErrMissingTemplate = errors.New("missing prompt template")
	ErrUnknownTemplate = errors.New("unknown prompt template")
)

//go:embed defaults.yaml
var defaultsYAML []byte

type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// Set is an immutable collection of parsed templates; safe for concurrent use.
type Set struct {
	templates map[string]*template.Template
}

// Default returns the embedded template set.
func Default() *Set {
	s, err := parse(defaultsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt templates are invalid: %v", err))
	}
	return s
}

// Load returns the embedded templates overlaid with the templates in path.
// An empty path yields the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}
	s, err := parse(defaultsYAML, data)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts file %s: %w", path, err)
	}
	slog.Info("Loaded prompt overrides", "path", path)
	return s, nil
}

func parse(base, overlay []byte) (*Set, error) {
	raw := map[string]string{}
	for _, doc := range [][]byte{base, overlay} {
		if len(doc) == 0 {
			continue
		}
		var tf templateFile
		if err := yaml.Unmarshal(doc, &tf); err != nil {
			return nil, fmt.Errorf("failed to parse prompt YAML: %w", err)
		}
		for k, v := range tf.Templates {
			raw[k] = v
		}
	}

	var missing []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(raw[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplate, strings.Join(missing, ", "))
	}

	s := &Set{templates: make(map[string]*template.Template, len(raw))}
	for k, v := range raw {
		t, err := template.New(k).Funcs(funcs).Option("missingkey=error").Parse(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", k, err)
		}
		s.templates[k] = t
	}
	return s, nil
}

// Render executes the named template with data.
func (s *Set) Render(name string, data any) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Example is a previous story shown to the generator for tone.
type Example struct {
	Title   string
	Snippet string
}

// AgeBand carries the audience age range into templates.
type AgeBand struct {
	MinAge int
	MaxAge int
}

// CreationData feeds story_creation.
type CreationData struct {
	AgeBand
	Theme      string
	WordRange  string
	Paragraphs int
	Structure  []string
	Examples   []Example
}

// ModificationData feeds story_modification.
type ModificationData struct {
	AgeBand
	Request       string
	PreviousStory string
	WordRange     string
	Paragraphs    int
}

// RefinementData feeds story_refinement.
type RefinementData struct {
	Title      string
	Content    string
	Feedback   string
	WordRange  string
	Paragraphs int
	Structure  []string
}

// EvaluationData feeds evaluation.
type EvaluationData struct {
	AgeBand
	Title   string
	Content string
}

// ConversationData feeds conversation_system.
type ConversationData struct {
	AgeBand
	Context string
	History string
}

// MessageData feeds the single-message classifiers.
type MessageData struct {
	AgeBand
	Message string
}

// ContextData feeds context_analysis.
type ContextData struct {
	Conversation string
	Request      string
}
