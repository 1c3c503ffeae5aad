package models

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLengthClass(t *testing.T) {
	tests := []struct {
		in      string
		want    LengthClass
		wantErr bool
	}{
		{"", LengthMedium, false},
		{"short", LengthShort, false},
		{" LONG ", LengthLong, false},
		{"Medium", LengthMedium, false},
		{"epic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLengthClass(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidLengthClass) {
				t.Errorf("ParseLengthClass(%q): expected ErrInvalidLengthClass, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLengthClass(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLengthClass(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestDefaultLengthTable(t *testing.T) {
	table := DefaultLengthTable()
	if got := table.Spec(LengthShort).Paragraphs; got != 2 {
		t.Errorf("expected 2 paragraphs for short, got %d", got)
	}
	if got := table.Spec(LengthMedium).Paragraphs; got != 3 {
		t.Errorf("expected 3 paragraphs for medium, got %d", got)
	}
	if got := table.Spec(LengthLong).WordRange(); got != "350-420" {
		t.Errorf("expected 350-420, got %q", got)
	}
	if got := (LengthTable{}).Spec(LengthShort).Paragraphs; got != 3 {
		t.Errorf("expected empty table to fall back to medium defaults, got %d", got)
	}
}

func TestSessionContextClone(t *testing.T) {
	sc := NewSessionContext("abc")
	sc.SetName("Mia")
	sc.SetAge(7)

	c := sc.Clone()
	c.SetName("Leo")
	if sc.DisplayName() != "Mia" {
		t.Errorf("expected original name %q, got %q", "Mia", sc.DisplayName())
	}
	if age, ok := c.KnownAge(); !ok || age != 7 {
		t.Errorf("expected cloned age 7, got %d (%v)", age, ok)
	}
	var nilCtx *SessionContext
	if nilCtx.DisplayName() != "" {
		t.Error("expected empty name for nil context")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != "ok" || ok.Result == nil {
		t.Errorf("unexpected success response: %+v", ok)
	}
	e := Error("boom")
	if e.Status != StatusError || e.Message != "boom" || e.Result != nil {
		t.Errorf("unexpected error response: %+v", e)
	}
	m := SuccessWithMessage("Story deleted", nil)
	if m.Status != StatusOK || m.Message != "Story deleted" {
		t.Errorf("unexpected message response: %+v", m)
	}
}

func TestValidatePrompt(t *testing.T) {
	if _, err := ValidatePrompt("   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if _, err := ValidatePrompt("dragons"); !errors.Is(err, ErrPromptTooShort) {
		t.Errorf("expected ErrPromptTooShort, got %v", err)
	}
	if _, err := ValidatePrompt(strings.Repeat("a ", 101)); !errors.Is(err, ErrPromptTooManyWords) {
		t.Errorf("expected ErrPromptTooManyWords, got %v", err)
	}
	if _, err := ValidatePrompt(strings.Repeat("x", 1501) + " y"); !errors.Is(err, ErrPromptTooLong) {
		t.Errorf("expected ErrPromptTooLong, got %v", err)
	}
	got, err := ValidatePrompt("  a shy\t rabbit\n learns \x07to share ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a shy rabbit learns to share" {
		t.Errorf("expected sanitized prompt, got %q", got)
	}
}

func TestValidateMessageAndSession(t *testing.T) {
	if _, err := ValidateMessage(""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := ValidateMessage(strings.Repeat("a", MaxMessageLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	if err := ValidateSessionID(""); err != nil {
		t.Errorf("expected empty session id to be valid, got %v", err)
	}
	if err := ValidateSessionID("abc-123_X"); err != nil {
		t.Errorf("expected valid session id, got %v", err)
	}
	if err := ValidateSessionID("../etc/passwd"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestValidateTTS(t *testing.T) {
	if err := ValidateTTSText(" "); !errors.Is(err, ErrEmptyTTSText) {
		t.Errorf("expected ErrEmptyTTSText, got %v", err)
	}
	if err := ValidateTTSText(strings.Repeat("a", MaxTTSTextLength+1)); !errors.Is(err, ErrTTSTextTooLong) {
		t.Errorf("expected ErrTTSTextTooLong, got %v", err)
	}
	for _, lang := range []string{"en", "en-US", "fra"} {
		if err := ValidateLanguage(lang); err != nil {
			t.Errorf("expected %q to be valid, got %v", lang, err)
		}
	}
	if err := ValidateLanguage("english!"); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("expected ErrInvalidLanguage, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("expected %q, got %q", "hé", got)
	}
	if got := Truncate("hi", 5); got != "hi" {
		t.Errorf("expected %q, got %q", "hi", got)
	}
}
