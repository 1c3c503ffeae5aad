package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebindDollar rewrites ? placeholders into $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const storyColumns = `id, session_id, created_at, title, content, prompt, length_type, iterations, scores,
	paragraph_count, expected_paragraphs, structure_ok, format_attempts, word_count, revision_history`

// storyArgs flattens a story into column order for storyColumns.
func storyArgs(s models.StoredStory) ([]any, error) {
	scores, err := json.Marshal(s.Scores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scores: %w", err)
	}
	history := s.RevisionHistory
	if history == nil {
		history = []models.RevisionEntry{}
	}
	revisions, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode revision history: %w", err)
	}
	return []any{
		s.ID, nilIfEmpty(s.SessionID), s.CreatedAt, s.Title, s.Content, s.Prompt, string(s.LengthClass),
		s.Iterations, string(scores), s.ParagraphCount, s.ExpectedParagraphs, s.StructureOK,
		s.FormatAttempts, s.WordCount, string(revisions),
	}, nil
}

// scanStory scans a StoredStory selected with storyColumns.
func scanStory(row rowScanner) (models.StoredStory, error) {
	var s models.StoredStory
	var sessionID sql.NullString
	var lengthType, scores, revisions string
	err := row.Scan(
		&s.ID, &sessionID, &s.CreatedAt, &s.Title, &s.Content, &s.Prompt, &lengthType, &s.Iterations, &scores,
		&s.ParagraphCount, &s.ExpectedParagraphs, &s.StructureOK, &s.FormatAttempts, &s.WordCount, &revisions,
	)
	if err != nil {
		return s, err
	}
	s.SessionID = sessionID.String
	s.LengthClass = models.LengthClass(lengthType)
	if scores != "" {
		if err := json.Unmarshal([]byte(scores), &s.Scores); err != nil {
			return s, fmt.Errorf("failed to decode scores for story %s: %w", s.ID, err)
		}
	}
	if revisions != "" {
		if err := json.Unmarshal([]byte(revisions), &s.RevisionHistory); err != nil {
			return s, fmt.Errorf("failed to decode revision history for story %s: %w", s.ID, err)
		}
	}
	return s, nil
}
