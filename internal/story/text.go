// Package story implements the storyteller (generator) and judge (critic) roles
// and the text helpers that enforce the paragraph structure contract.
package story

import (
	"fmt"
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits content on blank lines, dropping empty parts.
func SplitParagraphs(content string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(strings.TrimSpace(content), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CountParagraphs returns the number of non-empty blank-line separated paragraphs.
func CountParagraphs(content string) int {
	return len(SplitParagraphs(content))
}

// CountWords returns the number of whitespace separated words.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// Preview returns the first n runes of s, marked with "..." when cut.
func Preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// ParagraphRoles names the purpose of each paragraph for a target count.
func ParagraphRoles(n int) []string {
	switch {
	case n <= 1:
		return []string{"A single paragraph that sets up the story, tells the adventure and ends with the gentle moral"}
	case n == 2:
		return []string{
			"Introduction: set up the characters and the setting",
			"Conclusion: resolve the story and share the gentle moral",
		}
	}
	roles := []string{"Introduction: set up the characters and the setting"}
	for i := 1; i < n-1; i++ {
		roles = append(roles, "Development: the adventure or challenge grows")
	}
	return append(roles, "Resolution: resolve the challenge and share the gentle moral")
}

// ReformatFeedback is the synthesized instruction for a structure-only rewrite.
func ReformatFeedback(target int) string {
	var b strings.Builder
	if target == 1 {
		b.WriteString("Rewrite the story into EXACTLY 1 paragraph:\n")
	} else {
		fmt.Fprintf(&b, "Rewrite the story into EXACTLY %d paragraphs separated by a single blank line:\n", target)
	}
	for i, role := range ParagraphRoles(target) {
		fmt.Fprintf(&b, "%d) %s\n", i+1, role)
	}
	b.WriteString("Keep the same content, only adjust paragraph breaks.")
	return b.String()
}
