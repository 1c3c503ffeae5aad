// Package store provides storage backends for SleepyStorybook.
//
// It includes an in-memory store, a JSON file store and SQL stores backed by
// SQLite or PostgreSQL. All backends hold finished stories, per-session
// identity and the conversation log.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/google/uuid"
)

// MemoryDSN selects the in-memory backend.
const MemoryDSN = "memory"

// Store is the persistence interface used by the service.
type Store interface {
	// SaveStory assigns an ID and creation time and stores the story.
	SaveStory(ctx context.Context, s models.StoredStory) (models.StoredStory, error)
	// GetStory returns nil, nil when the story does not exist.
	GetStory(ctx context.Context, id string) (*models.StoredStory, error)
	// ListStories returns stories newest first, optionally for one session.
	ListStories(ctx context.Context, sessionID string, limit int) ([]models.StoredStory, error)
	// DeleteStory reports whether a story was removed.
	DeleteStory(ctx context.Context, id string) (bool, error)
	SaveSession(ctx context.Context, sc *models.SessionContext) error
	// GetSession returns nil, nil when the session is unknown.
	GetSession(ctx context.Context, id string) (*models.SessionContext, error)
	AppendMessages(ctx context.Context, sessionID string, msgs []models.ChatMessage) error
	// GetMessages returns up to limit most recent messages, oldest first.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	Close() error
}

// Opts holds configuration for SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "memory", "json", "postgres" or "sqlite3".
func DetectDSNType(dsn string) string {
	switch {
	case dsn == "" || dsn == MemoryDSN:
		return "memory"
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host="):
		return "postgres"
	case strings.HasSuffix(strings.ToLower(dsn), ".json"):
		return "json"
	default:
		return "sqlite3"
	}
}

// Open creates the backend selected by dsn.
func Open(dsn string) (Store, error) {
	kind := DetectDSNType(dsn)
	slog.Debug("store.Open selecting backend", "type", kind)
	switch kind {
	case "memory":
		return NewInMemoryStore(), nil
	case "json":
		return NewJSONFileStore(dsn)
	case "postgres":
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

// prepareStory fills in the fields assigned at save time.
func prepareStory(s models.StoredStory) models.StoredStory {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return s
}

// sortNewestFirst orders stories by creation time, newest first, and applies limit.
func sortNewestFirst(stories []models.StoredStory, limit int) []models.StoredStory {
	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	if limit > 0 && len(stories) > limit {
		stories = stories[:limit]
	}
	return stories
}

func tailMessages(msgs []models.ChatMessage, limit int) []models.ChatMessage {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// InMemoryStore is a simple in-memory store. Data is lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	stories  []models.StoredStory
	sessions map[string]*models.SessionContext
	messages map[string][]models.ChatMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.SessionContext),
		messages: make(map[string][]models.ChatMessage),
	}
}

func (s *InMemoryStore) SaveStory(ctx context.Context, st models.StoredStory) (models.StoredStory, error) {
	st = prepareStory(st)
	s.mu.Lock()
	s.stories = append(s.stories, st)
	s.mu.Unlock()
	slog.Debug("InMemoryStore SaveStory succeeded", "id", st.ID, "session_id", st.SessionID)
	return st, nil
}

func (s *InMemoryStore) GetStory(ctx context.Context, id string) (*models.StoredStory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.stories {
		if s.stories[i].ID == id {
			st := s.stories[i]
			return &st, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListStories(ctx context.Context, sessionID string, limit int) ([]models.StoredStory, error) {
	s.mu.RLock()
	out := make([]models.StoredStory, 0, len(s.stories))
	for _, st := range s.stories {
		if sessionID == "" || st.SessionID == sessionID {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()
	return sortNewestFirst(out, limit), nil
}

func (s *InMemoryStore) DeleteStory(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.stories {
		if s.stories[i].ID == id {
			s.stories = append(s.stories[:i], s.stories[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) SaveSession(ctx context.Context, sc *models.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	s.mu.Lock()
	s.sessions[sc.SessionID] = sc.Clone()
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetSession(ctx context.Context, id string) (*models.SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].Clone(), nil
}

func (s *InMemoryStore) AppendMessages(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], msgs...)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tailMessages(s.messages[sessionID], limit), nil
}

func (s *InMemoryStore) Close() error { return nil }
