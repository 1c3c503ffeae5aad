package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeSpeech struct {
	params openai.AudioSpeechNewParams
	status int
	err    error
}

func (f *fakeSpeech) New(ctx context.Context, body openai.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error) {
	f.params = body
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("ID3fake-mp3"))}, nil
}

func TestSynthesize(t *testing.T) {
	fake := &fakeSpeech{}
	s := &OpenAISpeech{speech: fake, model: DefaultModel, voice: DefaultVoice}

	rc, err := s.Synthesize(context.Background(), Request{Text: "Hello.World\n\nGoodnight", Slow: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "ID3fake-mp3" {
		t.Errorf("unexpected audio %q", data)
	}
	if fake.params.Input != "Hello. World . . . Goodnight" {
		t.Errorf("expected normalized input, got %q", fake.params.Input)
	}
	if !fake.params.Speed.Valid() || fake.params.Speed.Value != SlowSpeed {
		t.Errorf("expected slow speed, got %+v", fake.params.Speed)
	}
	if string(fake.params.Voice) != DefaultVoice {
		t.Errorf("expected voice %s, got %s", DefaultVoice, fake.params.Voice)
	}
}

func TestSynthesizeNormalSpeed(t *testing.T) {
	fake := &fakeSpeech{}
	s := &OpenAISpeech{speech: fake, model: DefaultModel, voice: DefaultVoice}
	rc, err := s.Synthesize(context.Background(), Request{Text: "Once upon a time."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc.Close()
	if fake.params.Speed.Valid() {
		t.Error("speed should be left to the provider default")
	}
}

func TestSynthesizeErrors(t *testing.T) {
	s := &OpenAISpeech{speech: &fakeSpeech{}, model: DefaultModel, voice: DefaultVoice}
	if _, err := s.Synthesize(context.Background(), Request{Text: "  \n "}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}

	boom := errors.New("provider down")
	s.speech = &fakeSpeech{err: boom}
	if _, err := s.Synthesize(context.Background(), Request{Text: "hi"}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}

	s.speech = &fakeSpeech{status: http.StatusBadRequest}
	if _, err := s.Synthesize(context.Background(), Request{Text: "hi"}); err == nil {
		t.Error("expected error for non-2xx status")
	}
}

func TestNewOpenAISpeechRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAISpeech(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewOpenAISpeech(WithAPIKey("sk-test"), WithVoice("alloy")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNormalizeForSpeech(t *testing.T) {
	tests := map[string]string{
		"  Hello   there  ":             "Hello there",
		"One.Two!Three?Four":            "One. Two! Three? Four",
		"First part.\n\n  Second part.": "First part. . . . Second part.",
		"Line one\nline two":            "Line one line two",
		"Pi is 3.14":                    "Pi is 3.14",
		"":                              "",
	}
	for in, want := range tests {
		if got := NormalizeForSpeech(in); got != want {
			t.Errorf("NormalizeForSpeech(%q) = %q, want %q", in, got, want)
		}
	}
}
