// Package tts renders story text to MP3 audio for bedtime read-aloud.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel = "tts-1"
	DefaultVoice = "nova"
	// SlowSpeed is used when a slow reading is requested.
	SlowSpeed = 0.8
	// ContentType is the media type of synthesized audio.
	ContentType = "audio/mpeg"

	DefaultRequestTimeout = 60 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("TTS API key not set")
	ErrEmptyText     = errors.New("nothing to synthesize")
)

// Request is one synthesis job.
type Request struct {
	Text     string
	Language string
	Slow     bool
}

// Synthesizer turns text into audio. The caller closes the returned reader.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}

// speechService defines minimal interface for speech synthesis.
type speechService interface {
	New(ctx context.Context, body openai.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error)
}

// Opts holds configuration for OpenAISpeech.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// Option defines a configuration option for OpenAISpeech.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible speech endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the speech model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithVoice sets the narrator voice.
func WithVoice(voice string) Option {
	return func(o *Opts) { o.Voice = voice }
}

// OpenAISpeech synthesizes MP3 audio with the OpenAI speech API.
type OpenAISpeech struct {
	speech speechService
	model  string
	voice  string
}

// NewOpenAISpeech creates a synthesizer. The API key falls back to OPENAI_API_KEY.
func NewOpenAISpeech(opts ...Option) (*OpenAISpeech, error) {
	cfg := Opts{Model: DefaultModel, Voice: DefaultVoice, Timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithRequestTimeout(cfg.Timeout)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("OpenAISpeech configured", "model", cfg.Model, "voice", cfg.Voice)
	return &OpenAISpeech{speech: &cli.Audio.Speech, model: cfg.Model, voice: cfg.Voice}, nil
}

// Synthesize normalizes the text and returns the MP3 stream.
func (s *OpenAISpeech) Synthesize(ctx context.Context, req Request) (io.ReadCloser, error) {
	text := NormalizeForSpeech(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if req.Slow {
		params.Speed = openai.Float(SlowSpeed)
	}
	if req.Language != "" && strings.HasPrefix(s.model, "gpt-") {
		params.Instructions = openai.String("Read calmly and gently, like a bedtime story, in language " + req.Language + ".")
	}

	start := time.Now()
	resp, err := s.speech.New(ctx, params)
	if err != nil {
		slog.Error("OpenAISpeech Synthesize failed", "error", err, "chars", len(text))
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to synthesize speech: unexpected status %d", resp.StatusCode)
	}
	slog.Debug("OpenAISpeech Synthesize succeeded", "chars", len(text), "slow", req.Slow, "latency", time.Since(start))
	return resp.Body, nil
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	whitespace     = regexp.MustCompile(`\s+`)
	tightSentence  = regexp.MustCompile(`([.!?])(\p{L})`)
)

// NormalizeForSpeech prepares story text for narration: paragraph breaks become
// ". . . " pauses, whitespace collapses, and sentences get a space after their
// closing punctuation.
func NormalizeForSpeech(text string) string {
	text = strings.TrimSpace(text)
	text = paragraphBreak.ReplaceAllString(text, " . . . ")
	text = whitespace.ReplaceAllString(text, " ")
	text = tightSentence.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}
