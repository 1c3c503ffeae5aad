package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Validation constants for input validation
const (
	// MaxPromptLength is the maximum length of a story prompt in characters
	MaxPromptLength = 1500
	// MinPromptWords is the minimum number of words in a story prompt
	MinPromptWords = 2
	// MaxPromptWords is the maximum number of words in a story prompt
	MaxPromptWords = 100
	// MaxMessageLength is the maximum length of a chat message in characters
	MaxMessageLength = 1000
	// MaxSessionIDLength is the maximum length of a client supplied session id
	MaxSessionIDLength = 100
	// MaxTTSTextLength is the maximum length of text sent to speech synthesis
	MaxTTSTextLength = 10000
	// MinUserAge and MaxUserAge bound ages accepted from self-introductions
	MinUserAge = 3
	MaxUserAge = 18
	// MinNameLength and MaxNameLength bound names accepted from self-introductions
	MinNameLength = 2
	MaxNameLength = 50
	// MaxHistoryMessages bounds the conversation history accepted per chat request
	MaxHistoryMessages = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrPromptTooLong      = errors.New("prompt exceeds maximum length")
	ErrPromptTooShort     = errors.New("prompt is too short")
	ErrPromptTooManyWords = errors.New("prompt has too many words")
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrEmptyTTSText       = errors.New("text cannot be empty")
	ErrTTSTextTooLong     = errors.New("text exceeds maximum length")
	ErrInvalidLanguage    = errors.New("invalid language code")
	ErrInvalidLengthClass = errors.New("invalid length type")
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	sessionIDChars = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	languageCode   = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z]{2})?$`)
)

// SanitizeText removes control characters, collapses whitespace and trims the result.
func SanitizeText(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
}

// ValidatePrompt sanitizes a story prompt and checks its length limits.
func ValidatePrompt(prompt string) (string, error) {
	p := SanitizeText(prompt)
	if p == "" {
		return "", ErrEmptyPrompt
	}
	if len([]rune(p)) > MaxPromptLength {
		return "", fmt.Errorf("%w: %d characters allowed", ErrPromptTooLong, MaxPromptLength)
	}
	words := len(strings.Fields(p))
	if words < MinPromptWords {
		return "", fmt.Errorf("%w: at least %d words required", ErrPromptTooShort, MinPromptWords)
	}
	if words > MaxPromptWords {
		return "", fmt.Errorf("%w: at most %d words allowed", ErrPromptTooManyWords, MaxPromptWords)
	}
	return p, nil
}

// ValidateMessage sanitizes a chat message and checks its length.
func ValidateMessage(message string) (string, error) {
	m := SanitizeText(message)
	if m == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(m)) > MaxMessageLength {
		return "", fmt.Errorf("%w: %d characters allowed", ErrMessageTooLong, MaxMessageLength)
	}
	return m, nil
}

// ValidateSessionID checks a client supplied session id. Empty ids are valid and mean "new session".
func ValidateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxSessionIDLength || !sessionIDChars.MatchString(id) {
		return ErrInvalidSessionID
	}
	return nil
}

// ValidateTTSText checks text submitted for speech synthesis.
func ValidateTTSText(text string) error {
	t := strings.TrimSpace(text)
	if t == "" {
		return ErrEmptyTTSText
	}
	if len([]rune(t)) > MaxTTSTextLength {
		return fmt.Errorf("%w: %d characters allowed", ErrTTSTextTooLong, MaxTTSTextLength)
	}
	return nil
}

// ValidateLanguage checks a short language code such as "en" or "en-US".
func ValidateLanguage(lang string) error {
	if !languageCode.MatchString(lang) {
		return ErrInvalidLanguage
	}
	return nil
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
