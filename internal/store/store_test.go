package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

func sampleStory(sessionID, title string, created time.Time) models.StoredStory {
	return models.StoredStory{
		SessionID: sessionID,
		CreatedAt: created,
		FinalStory: models.FinalStory{
			Title:              title,
			Content:            "One.\n\nTwo.\n\nThree.",
			Prompt:             "a sleepy owl",
			LengthClass:        models.LengthMedium,
			Iterations:         2,
			Scores:             models.QualityScore{Clarity: 9, MoralValue: 8, AgeAppropriateness: 9, Overall: 9, Approved: true, Verdict: true, Feedback: "Lovely."},
			ParagraphCount:     3,
			ExpectedParagraphs: 3,
			StructureOK:        true,
			WordCount:          3,
			RevisionHistory: []models.RevisionEntry{
				{Iteration: 1, Stage: models.StageCreate, Title: title, ContentPreview: "One.", ParagraphCount: 3},
			},
		},
	}
}

// backends returns every store that can run in this environment.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewInMemoryStore()}

	js, err := NewJSONFileStore(filepath.Join(dir, "data", "stories.json"))
	if err != nil {
		t.Fatalf("failed to create JSON store: %v", err)
	}
	out["json"] = js

	sq, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(dir, "db", "stories.db")))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	out["sqlite"] = sq

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			t.Logf("Postgres not available: %v", err)
		} else {
			pg.db.Exec("DELETE FROM stories")
			pg.db.Exec("DELETE FROM sessions")
			pg.db.Exec("DELETE FROM conversation_messages")
			out["postgres"] = pg
		}
	}
	t.Cleanup(func() {
		for _, s := range out {
			s.Close()
		}
	})
	return out
}

func TestStoreStories(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.SaveStory(ctx, sampleStory("sess-a", "First", base))
			if err != nil {
				t.Fatalf("SaveStory failed: %v", err)
			}
			if first.ID == "" {
				t.Fatal("expected an ID to be assigned")
			}
			if _, err := s.SaveStory(ctx, sampleStory("sess-b", "Second", base.Add(time.Minute))); err != nil {
				t.Fatalf("SaveStory failed: %v", err)
			}
			if _, err := s.SaveStory(ctx, sampleStory("sess-a", "Third", base.Add(2*time.Minute))); err != nil {
				t.Fatalf("SaveStory failed: %v", err)
			}

			all, err := s.ListStories(ctx, "", 10)
			if err != nil {
				t.Fatalf("ListStories failed: %v", err)
			}
			if len(all) != 3 || all[0].Title != "Third" || all[2].Title != "First" {
				t.Errorf("expected newest first, got %v", titles(all))
			}

			mine, _ := s.ListStories(ctx, "sess-a", 1)
			if len(mine) != 1 || mine[0].Title != "Third" {
				t.Errorf("expected session filter and limit, got %v", titles(mine))
			}

			got, err := s.GetStory(ctx, first.ID)
			if err != nil || got == nil {
				t.Fatalf("GetStory failed: %v", err)
			}
			if got.Scores.Overall != 9 || !got.StructureOK || len(got.RevisionHistory) != 1 || got.LengthClass != models.LengthMedium {
				t.Errorf("story did not round-trip: %+v", got)
			}

			missing, err := s.GetStory(ctx, "does-not-exist")
			if err != nil || missing != nil {
				t.Errorf("expected nil, nil for missing story, got %v, %v", missing, err)
			}

			deleted, err := s.DeleteStory(ctx, first.ID)
			if err != nil || !deleted {
				t.Errorf("expected delete to succeed, got %v, %v", deleted, err)
			}
			again, _ := s.DeleteStory(ctx, first.ID)
			if again {
				t.Error("expected second delete to report false")
			}
		})
	}
}

func TestStoreSessionsAndMessages(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sc, err := s.GetSession(ctx, "kid")
			if err != nil || sc != nil {
				t.Fatalf("expected unknown session, got %+v, %v", sc, err)
			}
			sc = models.NewSessionContext("kid")
			sc.SetName("Mia")
			if err := s.SaveSession(ctx, sc); err != nil {
				t.Fatalf("SaveSession failed: %v", err)
			}
			sc.SetAge(7)
			if err := s.SaveSession(ctx, sc); err != nil {
				t.Fatalf("SaveSession update failed: %v", err)
			}
			got, err := s.GetSession(ctx, "kid")
			if err != nil || got == nil {
				t.Fatalf("GetSession failed: %v", err)
			}
			if age, ok := got.KnownAge(); got.DisplayName() != "Mia" || !ok || age != 7 {
				t.Errorf("unexpected session %+v", got)
			}

			now := time.Now().UTC()
			msgs := []models.ChatMessage{
				{Role: models.ChatRoleUser, Content: "hi", CreatedAt: now},
				{Role: models.ChatRoleAssistant, Content: "hello", CreatedAt: now},
				{Role: models.ChatRoleUser, Content: "story please", CreatedAt: now},
			}
			if err := s.AppendMessages(ctx, "kid", msgs); err != nil {
				t.Fatalf("AppendMessages failed: %v", err)
			}
			last, err := s.GetMessages(ctx, "kid", 2)
			if err != nil {
				t.Fatalf("GetMessages failed: %v", err)
			}
			if len(last) != 2 || last[0].Content != "hello" || last[1].Content != "story please" {
				t.Errorf("expected the two most recent messages oldest first, got %+v", last)
			}
			if other, _ := s.GetMessages(ctx, "other", 10); len(other) != 0 {
				t.Errorf("expected no messages for other session, got %d", len(other))
			}
		})
	}
}

func TestJSONFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stories.json")
	s, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved, err := s.SaveStory(ctx, sampleStory("", "Kept", time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := reopened.GetStory(ctx, saved.ID)
	if got == nil || got.Title != "Kept" {
		t.Errorf("expected story to survive reopen, got %+v", got)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("expected no temp files, got %v", leftovers)
	}
}

func TestJSONFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stories.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONFileStore(path); err == nil {
		t.Error("expected error for corrupt document")
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"":                              "memory",
		"memory":                        "memory",
		"postgres://u:p@localhost/db":   "postgres",
		"host=localhost dbname=stories": "postgres",
		"/var/lib/sleepy/stories.json":  "json",
		"/var/lib/sleepy/stories.db":    "sqlite3",
		"stories.db?_busy_timeout=5000": "sqlite3",
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(MemoryDSN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("expected InMemoryStore, got %T", s)
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar("SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func titles(stories []models.StoredStory) []string {
	out := make([]string, len(stories))
	for i, s := range stories {
		out[i] = s.Title
	}
	return out
}
