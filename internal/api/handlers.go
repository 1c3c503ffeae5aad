package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/tts"
	"github.com/BTreeMap/SleepyStorybook/internal/twiliowhatsapp"
)

const (
	DefaultStoryListLimit = 10
	MaxStoryListLimit     = 100
	maxRequestBodyBytes   = 1 << 20
)

type healthStatus struct {
	Store string `json:"store"`
	TTS   bool   `json:"tts"`
	Share bool   `json:"share"`
}

type shareRequest struct {
	To string `json:"to"`
}

type ttsRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
	Slow bool   `json:"slow"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(v)
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeOKMessage(w, "SleepyStorybook API is running", map[string]string{
		"chat":     "/api/chat",
		"generate": "/api/generate-story",
		"stories":  "/api/stories",
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if _, err := s.st.ListStories(r.Context(), "", 1); err != nil {
		slog.Warn("Server.healthHandler: store check failed", "error", err)
		storeStatus = "unavailable"
	}
	writeOK(w, healthStatus{
		Store: storeStatus,
		TTS:   s.synth != nil,
		Share: s.sender != nil,
	})
}

func (s *Server) listStoriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := DefaultStoryListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxStoryListLimit {
			slog.Warn("Server.listStoriesHandler: invalid limit", "limit", raw)
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	sessionID := q.Get("session_id")
	if err := models.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stories, err := s.st.ListStories(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Server.listStoriesHandler: failed to list stories", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list stories")
		return
	}
	if stories == nil {
		stories = []models.StoredStory{}
	}
	slog.Debug("Server.listStoriesHandler: listed stories", "count", len(stories), "session_id", sessionID)
	writeOK(w, stories)
}

func (s *Server) getStoryHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	story, err := s.st.GetStory(r.Context(), id)
	if err != nil {
		slog.Error("Server.getStoryHandler: failed to load story", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load story")
		return
	}
	if story == nil {
		writeError(w, http.StatusNotFound, "Story not found")
		return
	}
	writeOK(w, story)
}

func (s *Server) deleteStoryHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.st.DeleteStory(r.Context(), id)
	if err != nil {
		slog.Error("Server.deleteStoryHandler: failed to delete story", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete story")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Story not found")
		return
	}
	slog.Info("Server.deleteStoryHandler: story deleted", "id", id)
	writeOKMessage(w, "Story deleted", nil)
}

func (s *Server) shareStoryHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "Story sharing is not configured")
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.shareStoryHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: to")
		return
	}

	id := r.PathValue("id")
	story, err := s.st.GetStory(r.Context(), id)
	if err != nil {
		slog.Error("Server.shareStoryHandler: failed to load story", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load story")
		return
	}
	if story == nil {
		writeError(w, http.StatusNotFound, "Story not found")
		return
	}

	if err := s.sender.SendMessage(r.Context(), to, twiliowhatsapp.FormatStory(story.Title, story.Content)); err != nil {
		slog.Error("Server.shareStoryHandler: failed to send story", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to share story")
		return
	}
	slog.Info("Server.shareStoryHandler: story shared", "id", id)
	writeOKMessage(w, "Story shared", nil)
}

func (s *Server) ttsHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if s.synth == nil {
		writeError(w, http.StatusServiceUnavailable, "Text-to-speech is not configured")
		return
	}
	var req ttsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.ttsHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Lang == "" {
		req.Lang = "en"
	}
	if err := models.ValidateTTSText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateLanguage(req.Lang); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	audio, err := s.synth.Synthesize(r.Context(), tts.Request{Text: req.Text, Language: req.Lang, Slow: req.Slow})
	if err != nil {
		slog.Error("Server.ttsHandler: synthesis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to synthesize speech")
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", tts.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="story.mp3"`)
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, audio)
	if err != nil {
		slog.Error("Server.ttsHandler: failed to stream audio", "error", err, "bytes", n)
		return
	}
	slog.Debug("Server.ttsHandler: audio streamed", "bytes", n, "slow", req.Slow)
}
