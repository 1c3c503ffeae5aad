package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// DefaultFilePermissions is used for the JSON document.
const DefaultFilePermissions = 0644

type jsonDocument struct {
	Stories  []models.StoredStory              `json:"stories"`
	Sessions map[string]*models.SessionContext `json:"sessions"`
	Messages map[string][]models.ChatMessage   `json:"conversations"`
}

// JSONFileStore keeps everything in one JSON document on disk. Every write
// rewrites the file through a temporary file and an atomic rename.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
	doc  jsonDocument
}

// NewJSONFileStore opens or creates the JSON document at path.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		slog.Error("Failed to create JSON store directory", "error", err, "path", path)
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &JSONFileStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("JSONFileStore creating new document", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			slog.Error("JSONFileStore document is corrupt", "error", err, "path", path)
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if s.doc.Sessions == nil {
		s.doc.Sessions = make(map[string]*models.SessionContext)
	}
	if s.doc.Messages == nil {
		s.doc.Messages = make(map[string][]models.ChatMessage)
	}
	if err := s.flush(); err != nil {
		return nil, err
	}
	slog.Debug("JSONFileStore opened", "path", path, "stories", len(s.doc.Stories))
	return s, nil
}

// flush writes the document; callers hold mu.
func (s *JSONFileStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, DefaultFilePermissions); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		slog.Error("JSONFileStore rename failed", "error", err, "path", s.path)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONFileStore) SaveStory(ctx context.Context, st models.StoredStory) (models.StoredStory, error) {
	st = prepareStory(st)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stories = append(s.doc.Stories, st)
	if err := s.flush(); err != nil {
		s.doc.Stories = s.doc.Stories[:len(s.doc.Stories)-1]
		slog.Error("JSONFileStore SaveStory failed", "error", err, "id", st.ID)
		return models.StoredStory{}, err
	}
	slog.Debug("JSONFileStore SaveStory succeeded", "id", st.ID)
	return st, nil
}

func (s *JSONFileStore) GetStory(ctx context.Context, id string) (*models.StoredStory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Stories {
		if s.doc.Stories[i].ID == id {
			st := s.doc.Stories[i]
			return &st, nil
		}
	}
	return nil, nil
}

func (s *JSONFileStore) ListStories(ctx context.Context, sessionID string, limit int) ([]models.StoredStory, error) {
	s.mu.Lock()
	out := make([]models.StoredStory, 0, len(s.doc.Stories))
	for _, st := range s.doc.Stories {
		if sessionID == "" || st.SessionID == sessionID {
			out = append(out, st)
		}
	}
	s.mu.Unlock()
	return sortNewestFirst(out, limit), nil
}

func (s *JSONFileStore) DeleteStory(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Stories {
		if s.doc.Stories[i].ID != id {
			continue
		}
		removed := s.doc.Stories[i]
		s.doc.Stories = append(s.doc.Stories[:i], s.doc.Stories[i+1:]...)
		if err := s.flush(); err != nil {
			s.doc.Stories = append(s.doc.Stories[:i], append([]models.StoredStory{removed}, s.doc.Stories[i:]...)...)
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *JSONFileStore) SaveSession(ctx context.Context, sc *models.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Sessions[sc.SessionID] = sc.Clone()
	return s.flush()
}

func (s *JSONFileStore) GetSession(ctx context.Context, id string) (*models.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Sessions[id].Clone(), nil
}

func (s *JSONFileStore) AppendMessages(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Messages[sessionID] = append(s.doc.Messages[sessionID], msgs...)
	return s.flush()
}

func (s *JSONFileStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tailMessages(s.doc.Messages[sessionID], limit), nil
}

func (s *JSONFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}
