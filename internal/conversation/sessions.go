package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

var ErrEmptySessionID = errors.New("session id is empty")

// SessionStore keeps SessionContext per session id. Sessions are created lazily.
type SessionStore interface {
	// Get returns a copy of the session, creating an empty one if needed.
	Get(ctx context.Context, id string) (*models.SessionContext, error)
	// Put replaces the stored session.
	Put(ctx context.Context, sc *models.SessionContext) error
	// Update runs fn with exclusive access to the session. Changes made by fn are
	// committed only when it returns nil. The committed copy is returned.
	Update(ctx context.Context, id string, fn func(sc *models.SessionContext) error) (*models.SessionContext, error)
}

// keyedMutex hands out one lock per key. Waiting for a lock honours ctx.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]chan struct{})}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	k.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for session lock: %w", ctx.Err())
	}
}

// MemorySessionStore is an in-process SessionStore for single-instance deployments.
type MemorySessionStore struct {
	locks    *keyedMutex
	mu       sync.RWMutex
	sessions map[string]*models.SessionContext
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		locks:    newKeyedMutex(),
		sessions: make(map[string]*models.SessionContext),
	}
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*models.SessionContext, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	m.mu.RLock()
	sc, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return models.NewSessionContext(id), nil
	}
	return sc.Clone(), nil
}

func (m *MemorySessionStore) Put(ctx context.Context, sc *models.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return ErrEmptySessionID
	}
	unlock, err := m.locks.lock(ctx, sc.SessionID)
	if err != nil {
		return err
	}
	defer unlock()
	m.mu.Lock()
	m.sessions[sc.SessionID] = sc.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Update(ctx context.Context, id string, fn func(sc *models.SessionContext) error) (*models.SessionContext, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	unlock, err := m.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	working, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[id] = working.Clone()
	m.mu.Unlock()
	slog.Debug("MemorySessionStore Update committed", "session_id", id, "name_set", working.Name != nil, "age_set", working.Age != nil)
	return working, nil
}
