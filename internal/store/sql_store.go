package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// sqlStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound for drivers that need positional parameters.
type sqlStore struct {
	db     *sql.DB
	name   string
	rebind func(string) string
}

func (s *sqlStore) q(query string) string {
	if s.rebind == nil {
		return query
	}
	return s.rebind(query)
}

func (s *sqlStore) SaveStory(ctx context.Context, st models.StoredStory) (models.StoredStory, error) {
	st = prepareStory(st)
	args, err := storyArgs(st)
	if err != nil {
		return models.StoredStory{}, err
	}
	query := `INSERT INTO stories (` + storyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.q(query), args...); err != nil {
		slog.Error(s.name+" SaveStory failed", "error", err, "id", st.ID)
		return models.StoredStory{}, fmt.Errorf("failed to insert story %s: %w", st.ID, err)
	}
	slog.Debug(s.name+" SaveStory succeeded", "id", st.ID, "session_id", st.SessionID)
	return st, nil
}

func (s *sqlStore) GetStory(ctx context.Context, id string) (*models.StoredStory, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+storyColumns+` FROM stories WHERE id = ?`), id)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(s.name+" GetStory not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetStory failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	return &st, nil
}

func (s *sqlStore) ListStories(ctx context.Context, sessionID string, limit int) ([]models.StoredStory, error) {
	query := `SELECT ` + storyColumns + ` FROM stories`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		slog.Error(s.name+" ListStories query failed", "error", err)
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	stories := []models.StoredStory{}
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			slog.Error(s.name+" ListStories scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate story rows: %w", err)
	}
	slog.Debug(s.name+" ListStories succeeded", "count", len(stories), "session_id", sessionID)
	return stories, nil
}

func (s *sqlStore) DeleteStory(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM stories WHERE id = ?`), id)
	if err != nil {
		slog.Error(s.name+" DeleteStory failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to delete story %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) SaveSession(ctx context.Context, sc *models.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	var name, age any
	if sc.Name != nil {
		name = *sc.Name
	}
	if sc.Age != nil {
		age = *sc.Age
	}
	query := `INSERT INTO sessions (session_id, name, age, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET name = excluded.name, age = excluded.age, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.q(query), sc.SessionID, name, age, sc.UpdatedAt); err != nil {
		slog.Error(s.name+" SaveSession failed", "error", err, "session_id", sc.SessionID)
		return fmt.Errorf("failed to save session %s: %w", sc.SessionID, err)
	}
	return nil
}

func (s *sqlStore) GetSession(ctx context.Context, id string) (*models.SessionContext, error) {
	var name sql.NullString
	var age sql.NullInt64
	sc := &models.SessionContext{SessionID: id}
	err := s.db.QueryRowContext(ctx, s.q(`SELECT name, age, updated_at FROM sessions WHERE session_id = ?`), id).
		Scan(&name, &age, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetSession failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	if name.Valid {
		n := name.String
		sc.Name = &n
	}
	if age.Valid {
		a := int(age.Int64)
		sc.Age = &a
	}
	return sc, nil
}

func (s *sqlStore) AppendMessages(ctx context.Context, sessionID string, msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	query := s.q(`INSERT INTO conversation_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, query, sessionID, string(m.Role), m.Content, m.CreatedAt); err != nil {
			slog.Error(s.name+" AppendMessages failed", "error", err, "session_id", sessionID)
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (s *sqlStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	query := `SELECT role, content, created_at FROM conversation_messages WHERE session_id = ? ORDER BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		slog.Error(s.name+" GetMessages query failed", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var role string
		if err := rows.Scan(&role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.ChatRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
	}
	return err
}
