package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/conversation"
	"github.com/BTreeMap/SleepyStorybook/internal/flow"
	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/google/uuid"
)

const (
	// MaxRequestIterations caps max_iterations accepted from clients.
	MaxRequestIterations = 10
	// StyleExampleCount is how many of a session's recent stories guide a new one.
	StyleExampleCount = 3

	rateLimitMessage = "Rate limit reached for the current model(s). Please try again in a few minutes."
)

type generateRequest struct {
	Prompt        string `json:"prompt"`
	LengthType    string `json:"length_type"`
	SessionID     string `json:"session_id"`
	MaxIterations int    `json:"max_iterations"`
}

type chatRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []models.ChatMessage `json:"conversation_history"`
	SessionID           string               `json:"session_id"`
	AutoGenerate        bool                 `json:"auto_generate"`
	LengthType          string               `json:"length_type"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	conversation.Decision
	Story      *models.StoredStory `json:"story,omitempty"`
	StoryError string              `json:"story_error,omitempty"`
}

func (s *Server) generateStoryHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.generateStoryHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	prompt, err := models.ValidatePrompt(req.Prompt)
	if err != nil {
		slog.Warn("Server.generateStoryHandler: invalid prompt", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	length, err := models.ParseLengthClass(req.LengthType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxIterations < 0 || req.MaxIterations > MaxRequestIterations {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("max_iterations must be between 1 and %d", MaxRequestIterations))
		return
	}

	slog.Debug("Server.generateStoryHandler: generating", "length", length, "session_id", req.SessionID)
	stored, err := s.generateStory(r.Context(), flow.Request{
		Prompt:        prompt,
		Length:        length,
		MaxIterations: req.MaxIterations,
	}, req.SessionID)
	if err != nil {
		status, msg := generationFailure(err)
		writeError(w, status, msg)
		return
	}
	writeOK(w, stored)
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	message, err := models.ValidateMessage(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	length, err := models.ParseLengthClass(req.LengthType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		slog.Debug("Server.chatHandler: assigned new session", "session_id", sessionID)
	}
	history := s.chatHistory(r.Context(), sessionID, req.ConversationHistory)

	var decision conversation.Decision
	_, err = s.sessions.Update(r.Context(), sessionID, func(sc *models.SessionContext) error {
		var routeErr error
		decision, routeErr = s.router.Route(r.Context(), message, history, sc)
		return routeErr
	})
	if err != nil {
		slog.Error("Server.chatHandler: routing failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	slog.Info("Server.chatHandler: message routed", "session_id", sessionID, "type", decision.Kind,
		"should_generate_story", decision.ShouldGenerateStory)

	resp := chatResponse{SessionID: sessionID, Decision: decision}
	now := time.Now().UTC()
	exchange := []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: message, CreatedAt: now},
		{Role: models.ChatRoleAssistant, Content: decision.Response, CreatedAt: now},
	}

	if req.AutoGenerate && decision.ShouldGenerateStory {
		stored, genErr := s.generateStory(r.Context(), flow.Request{Prompt: decision.StoryPrompt, Length: length}, sessionID)
		if genErr != nil {
			_, resp.StoryError = generationFailure(genErr)
		} else {
			resp.Story = &stored
			exchange = append(exchange, models.ChatMessage{
				Role:      models.ChatRoleAssistant,
				Content:   conversation.StoryContentMarker + " " + stored.Title + "\n\n" + stored.Content,
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	if err := s.st.AppendMessages(r.Context(), sessionID, exchange); err != nil {
		slog.Error("Server.chatHandler: failed to persist exchange", "session_id", sessionID, "error", err)
	}
	writeOK(w, resp)
}

// chatHistory prefers the client's history and falls back to the stored log.
func (s *Server) chatHistory(ctx context.Context, sessionID string, supplied []models.ChatMessage) []models.ChatMessage {
	if len(supplied) > 0 {
		if len(supplied) > models.MaxHistoryMessages {
			supplied = supplied[len(supplied)-models.MaxHistoryMessages:]
		}
		return supplied
	}
	stored, err := s.st.GetMessages(ctx, sessionID, models.MaxHistoryMessages)
	if err != nil {
		slog.Warn("Server.chatHistory: failed to load stored history", "session_id", sessionID, "error", err)
		return nil
	}
	return stored
}

// generateStory runs the workflow in a bounded slot and saves the result.
func (s *Server) generateStory(ctx context.Context, req flow.Request, sessionID string) (models.StoredStory, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return models.StoredStory{}, fmt.Errorf("failed to acquire generation slot: %w", err)
	}
	defer s.slots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	if sessionID != "" {
		req.StyleExamples = s.styleExamples(ctx, sessionID)
	}
	started := time.Now()
	final, err := s.workflow.Run(ctx, req)
	if err != nil {
		slog.Error("Server.generateStory: workflow failed", "session_id", sessionID, "error", err,
			"duration", time.Since(started))
		return models.StoredStory{}, err
	}
	stored, err := s.st.SaveStory(ctx, models.StoredStory{SessionID: sessionID, FinalStory: *final})
	if err != nil {
		slog.Error("Server.generateStory: failed to save story", "error", err)
		return models.StoredStory{}, fmt.Errorf("failed to save story: %w", err)
	}
	slog.Info("Server.generateStory: story saved", "id", stored.ID, "title", stored.Title,
		"iterations", stored.Iterations, "duration", time.Since(started))
	return stored, nil
}

func (s *Server) styleExamples(ctx context.Context, sessionID string) []models.StoryDraft {
	recent, err := s.st.ListStories(ctx, sessionID, StyleExampleCount)
	if err != nil {
		slog.Warn("Server.styleExamples: failed to load recent stories", "session_id", sessionID, "error", err)
		return nil
	}
	drafts := make([]models.StoryDraft, 0, len(recent))
	for _, st := range recent {
		drafts = append(drafts, st.Draft())
	}
	return drafts
}

// generationFailure maps a generation error to an HTTP status and client message.
func generationFailure(err error) (int, string) {
	var exhausted *genai.ModelExhaustedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Story generation timed out"
	case errors.As(err, &exhausted) && genai.IsRateLimited(exhausted.Last):
		return http.StatusTooManyRequests, rateLimitMessage
	default:
		return http.StatusInternalServerError, "Failed to generate story"
	}
}
