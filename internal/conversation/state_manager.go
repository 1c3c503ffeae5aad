package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// SessionPersister is the subset of the story store used for session context.
type SessionPersister interface {
	GetSession(ctx context.Context, id string) (*models.SessionContext, error)
	SaveSession(ctx context.Context, sc *models.SessionContext) error
}

// StoreBackedSessions implements SessionStore on top of a persistence store so
// that identity facts survive restarts. Exclusion is per process.
type StoreBackedSessions struct {
	store SessionPersister
	locks *keyedMutex
}

// NewStoreBackedSessions creates a SessionStore backed by st.
func NewStoreBackedSessions(st SessionPersister) *StoreBackedSessions {
	slog.Debug("Creating StoreBackedSessions")
	return &StoreBackedSessions{store: st, locks: newKeyedMutex()}
}

// Get loads the session, returning an empty context when none is stored.
func (s *StoreBackedSessions) Get(ctx context.Context, id string) (*models.SessionContext, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	sc, err := s.store.GetSession(ctx, id)
	if err != nil {
		slog.Error("StoreBackedSessions Get error", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if sc == nil {
		slog.Debug("StoreBackedSessions Get not found, starting fresh", "session_id", id)
		return models.NewSessionContext(id), nil
	}
	return sc, nil
}

// Put stores the session.
func (s *StoreBackedSessions) Put(ctx context.Context, sc *models.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return ErrEmptySessionID
	}
	unlock, err := s.locks.lock(ctx, sc.SessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(ctx, sc)
}

// Update loads, mutates and saves the session under its lock.
func (s *StoreBackedSessions) Update(ctx context.Context, id string, fn func(sc *models.SessionContext) error) (*models.SessionContext, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := sc.Clone()
	if err := fn(sc); err != nil {
		return nil, err
	}
	if !sameIdentity(before, sc) {
		if err := s.save(ctx, sc); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func (s *StoreBackedSessions) save(ctx context.Context, sc *models.SessionContext) error {
	sc.UpdatedAt = time.Now()
	if err := s.store.SaveSession(ctx, sc); err != nil {
		slog.Error("StoreBackedSessions save error", "error", err, "session_id", sc.SessionID)
		return fmt.Errorf("failed to save session %s: %w", sc.SessionID, err)
	}
	slog.Debug("StoreBackedSessions saved session", "session_id", sc.SessionID)
	return nil
}

func sameIdentity(a, b *models.SessionContext) bool {
	aAge, aOK := a.KnownAge()
	bAge, bOK := b.KnownAge()
	return a.DisplayName() == b.DisplayName() && (a.Name == nil) == (b.Name == nil) && aOK == bOK && aAge == bAge
}
