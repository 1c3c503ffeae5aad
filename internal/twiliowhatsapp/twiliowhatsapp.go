// Package twiliowhatsapp wraps the Twilio API for sharing stories over WhatsApp.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MaxMessageLength is the WhatsApp body limit enforced by Twilio.
const MaxMessageLength = 1600

var ErrEmptyRecipient = errors.New("recipient is empty")

// Sender delivers WhatsApp text messages.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, e.g. "whatsapp:+14155238886".
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient creates a Client. Missing options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}
	if !strings.HasPrefix(cfg.FromWhats, "whatsapp:") {
		cfg.FromWhats = "whatsapp:" + cfg.FromWhats
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		fromWhats: cfg.FromWhats,
	}, nil
}

// SendMessage sends a WhatsApp message using Twilio API. Bodies over the
// WhatsApp limit are sent as several messages.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if strings.TrimSpace(to) == "" {
		return ErrEmptyRecipient
	}
	for i, part := range SplitMessage(body, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(whatsAppAddress(to))
		params.SetFrom(c.fromWhats)
		params.SetBody(part)

		if _, err := c.client.Api.CreateMessage(params); err != nil {
			slog.Error("Twilio SendMessage failed", "to", to, "part", i, "error", err)
			return fmt.Errorf("failed to send message to %s: %w", to, err)
		}
	}
	slog.Debug("Twilio message sent", "to", to)
	return nil
}

func whatsAppAddress(to string) string {
	if strings.HasPrefix(to, "whatsapp:") {
		return to
	}
	return "whatsapp:" + to
}

// FormatStory renders a story for a chat message.
func FormatStory(title, content string) string {
	return fmt.Sprintf("🌙 *%s*\n\n%s\n\nSweet dreams! ✨", strings.TrimSpace(title), strings.TrimSpace(content))
}

// SplitMessage splits body into chunks of at most limit runes, breaking on
// paragraph boundaries, then word boundaries when a paragraph is too long.
func SplitMessage(body string, limit int) []string {
	body = strings.TrimSpace(body)
	if limit <= 0 || runeLen(body) <= limit {
		return []string{body}
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(body, "\n\n") {
		for _, piece := range splitLong(para, limit) {
			sep := ""
			if cur.Len() > 0 {
				sep = "\n\n"
			}
			if runeLen(cur.String())+runeLen(sep)+runeLen(piece) > limit {
				flush()
				sep = ""
			}
			cur.WriteString(sep)
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitLong breaks a single paragraph into word-aligned pieces within limit.
func splitLong(para string, limit int) []string {
	if runeLen(para) <= limit {
		return []string{para}
	}
	var pieces []string
	var cur []rune
	for _, word := range strings.Fields(para) {
		w := []rune(word)
		for len(w) > limit {
			if len(cur) > 0 {
				pieces = append(pieces, string(cur))
				cur = nil
			}
			pieces = append(pieces, string(w[:limit]))
			w = w[limit:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, w...)
		case len(cur)+1+len(w) <= limit:
			cur = append(cur, ' ')
			cur = append(cur, w...)
		default:
			pieces = append(pieces, string(cur))
			cur = append([]rune(nil), w...)
		}
	}
	if len(cur) > 0 {
		pieces = append(pieces, string(cur))
	}
	return pieces
}

func runeLen(s string) int { return len([]rune(s)) }

// MockClient records messages instead of sending them.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error
}

type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
